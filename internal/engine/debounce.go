package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-proctor/internal/clock"
	"github.com/miradorstack/mirador-proctor/internal/metrics"
	"github.com/miradorstack/mirador-proctor/internal/signals"
)

// ChannelID names an independently debounced condition.
type ChannelID string

const (
	ChannelNoFace    ChannelID = "no-face"
	ChannelLookAway  ChannelID = "look-away"
	ChannelMultiFace ChannelID = "multi-face"
)

// Messages emitted by the presence channels.
const (
	MessageNoFace    = "No face detected >10s"
	MessageLookAway  = "User looking away >5s"
	MessageMultiFace = "Multiple faces detected"
)

// ObjectEventType is the type tag carried by object detection records.
const ObjectEventType = "object-detected"

// State is the debounce state of a channel.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateCooldown:
		return "cooldown"
	default:
		return "idle"
	}
}

// ChannelState is an inspectable snapshot of one channel.
type ChannelState struct {
	ID      ChannelID
	State   State
	ArmedAt time.Time
	Dwell   time.Duration
}

// Sink receives raw event payloads for normalization. Presence channels
// emit their message string; object hits emit an object-detected record.
type Sink func(raw any)

// Policy holds the dwell times and gaze rectangle for the presence channels.
type Policy struct {
	NoFaceDwell   time.Duration
	LookAwayDwell time.Duration
	// A face center counts as on-screen when it lies strictly inside
	// (GazeMin, GazeMax) on both axes.
	GazeMin float64
	GazeMax float64
}

// DefaultPolicy returns the stock presence policy.
func DefaultPolicy() Policy {
	return Policy{
		NoFaceDwell:   10 * time.Second,
		LookAwayDwell: 5 * time.Second,
		GazeMin:       0.3,
		GazeMax:       0.7,
	}
}

// Options configure a Debouncer.
type Options struct {
	Policy    Policy
	Filter    *ObjectFilter
	Scheduler clock.Scheduler
	Sink      Sink
	Logger    *slog.Logger
}

type channel struct {
	id      ChannelID
	dwell   time.Duration
	message string
	// rearm returns the channel to idle after a fire, so a still-true
	// condition arms it again on the next observation. Otherwise the channel
	// cools down until its reset condition is observed.
	rearm bool

	state State
	since time.Time
	timer clock.Timer
	gen   uint64
}

// Debouncer turns sustained presence conditions into discrete events and
// forwards qualifying object predictions. It is not safe for concurrent use:
// callers serialise Observe*, CancelAll and timer callbacks behind one lock,
// which is what a clock.RealScheduler built with that lock does for fires.
type Debouncer struct {
	policy    Policy
	filter    *ObjectFilter
	scheduler clock.Scheduler
	sink      Sink
	logger    *slog.Logger

	noFace   *channel
	lookAway *channel
	closed   bool
}

// NewDebouncer validates options and returns a debouncer ready to observe.
func NewDebouncer(opts Options) (*Debouncer, error) {
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	policy := opts.Policy
	if policy.NoFaceDwell < 0 || policy.LookAwayDwell < 0 {
		return nil, errors.New("dwell times must not be negative")
	}
	if policy.GazeMin >= policy.GazeMax {
		return nil, errors.New("gaze rectangle is empty")
	}
	filter := opts.Filter
	if filter == nil {
		filter = DefaultObjectFilter()
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = clock.NewRealScheduler(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Debouncer{
		policy:    policy,
		filter:    filter,
		scheduler: scheduler,
		sink:      opts.Sink,
		logger:    logger,
		noFace:    &channel{id: ChannelNoFace, dwell: policy.NoFaceDwell, message: MessageNoFace},
		lookAway:  &channel{id: ChannelLookAway, dwell: policy.LookAwayDwell, message: MessageLookAway, rearm: true},
	}, nil
}

// ObservePresence updates the presence channels from one face detection
// result. Multiple faces emit immediately, once per call.
func (d *Debouncer) ObservePresence(p signals.Presence) {
	if d.closed {
		return
	}

	count := p.FaceCount
	if count < len(p.Faces) {
		count = len(p.Faces)
	}

	if count > 1 {
		d.emitNow(ChannelMultiFace, MessageMultiFace)
	}

	if count == 0 {
		d.arm(d.noFace)
	} else {
		d.reset(d.noFace)
	}

	if count != 1 || len(p.Faces) == 0 || !p.Faces[0].HasCenter {
		return
	}
	if d.onScreen(p.Faces[0]) {
		d.reset(d.lookAway)
	} else {
		d.arm(d.lookAway)
	}
}

// ObserveObjects forwards every prediction accepted by the filter as its own
// event and returns how many were forwarded. Repeated detections across
// calls are not deduplicated.
func (d *Debouncer) ObserveObjects(o signals.Objects) int {
	if d.closed {
		return 0
	}
	forwarded := 0
	for _, p := range o.Predictions {
		if !d.filter.Accept(p) {
			metrics.ObserveObjectPrediction(metrics.OutcomeRejected)
			continue
		}
		metrics.ObserveObjectPrediction(metrics.OutcomeAccepted)
		d.sink(map[string]any{
			"type":       ObjectEventType,
			"label":      normaliseLabel(p.Label),
			"confidence": p.Confidence,
			"time":       d.scheduler.Now().UnixMilli(),
		})
		forwarded++
	}
	return forwarded
}

// CancelAll stops every pending timer and closes the debouncer. Nothing is
// emitted afterwards, including by callbacks that were already in flight.
func (d *Debouncer) CancelAll() {
	d.closed = true
	for _, ch := range d.channels() {
		if ch.timer != nil {
			ch.timer.Stop()
			ch.timer = nil
		}
		ch.gen++
		ch.state = StateIdle
		ch.since = time.Time{}
	}
}

// Closed reports whether CancelAll has been called.
func (d *Debouncer) Closed() bool {
	return d.closed
}

// Snapshot returns the current state of every channel.
func (d *Debouncer) Snapshot() []ChannelState {
	states := make([]ChannelState, 0, 3)
	for _, ch := range d.channels() {
		states = append(states, ChannelState{ID: ch.id, State: ch.state, ArmedAt: ch.since, Dwell: ch.dwell})
	}
	return append(states, ChannelState{ID: ChannelMultiFace, State: StateIdle})
}

func (d *Debouncer) channels() []*channel {
	return []*channel{d.noFace, d.lookAway}
}

func (d *Debouncer) onScreen(f signals.Face) bool {
	min, max := d.policy.GazeMin, d.policy.GazeMax
	return f.CenterX > min && f.CenterX < max && f.CenterY > min && f.CenterY < max
}

// arm starts the dwell timer for ch unless it is already armed or cooling down.
func (d *Debouncer) arm(ch *channel) {
	if ch.state != StateIdle {
		return
	}
	ch.gen++
	gen := ch.gen
	ch.state = StateArmed
	ch.since = d.scheduler.Now()
	ch.timer = d.scheduler.AfterFunc(ch.dwell, func() { d.fire(ch, gen) })
}

// reset disarms ch the instant its trigger condition stops holding.
func (d *Debouncer) reset(ch *channel) {
	switch ch.state {
	case StateArmed:
		if ch.timer != nil {
			ch.timer.Stop()
			ch.timer = nil
		}
		ch.gen++
	case StateIdle:
		return
	}
	ch.state = StateIdle
	ch.since = time.Time{}
}

func (d *Debouncer) fire(ch *channel, gen uint64) {
	if d.closed || ch.state != StateArmed || ch.gen != gen {
		return
	}
	ch.timer = nil
	ch.since = time.Time{}
	if ch.rearm {
		ch.state = StateIdle
	} else {
		ch.state = StateCooldown
	}
	d.emitNow(ch.id, ch.message)
}

func (d *Debouncer) emitNow(id ChannelID, message string) {
	metrics.ObserveDebounceFire(string(id))
	d.logger.Debug("channel fired", slog.String("channel", string(id)))
	d.sink(message)
}
