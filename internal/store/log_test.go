package store

import (
	"sync"
	"testing"

	"github.com/miradorstack/mirador-proctor/internal/models"
)

func TestLogPreservesInsertionOrder(t *testing.T) {
	l := NewLog()
	// Timestamps deliberately out of order.
	l.Append(models.CanonicalEvent{Kind: models.KindFocus, Timestamp: 300})
	l.Append(models.CanonicalEvent{Kind: models.KindObjectDetected, Timestamp: 100})
	l.Append(models.CanonicalEvent{Kind: models.KindOther, Timestamp: 200})

	all := l.All()
	if len(all) != 3 || l.Len() != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	want := []int64{300, 100, 200}
	for i, ev := range all {
		if ev.Timestamp != want[i] {
			t.Fatalf("position %d: got %d, want %d", i, ev.Timestamp, want[i])
		}
	}
}

func TestLogAllReturnsCopy(t *testing.T) {
	l := NewLog()
	l.Append(models.CanonicalEvent{Kind: models.KindFocus, Message: "a", Timestamp: 1})

	view := l.All()
	view[0].Message = "mutated"
	if l.All()[0].Message != "a" {
		t.Fatalf("caller mutation leaked into the log")
	}
}

func TestLogSince(t *testing.T) {
	l := NewLog()
	for i := 1; i <= 4; i++ {
		l.Append(models.CanonicalEvent{Kind: models.KindOther, Timestamp: int64(i)})
	}
	if got := l.Since(2); len(got) != 2 || got[0].Timestamp != 3 {
		t.Fatalf("unexpected tail %+v", got)
	}
	if got := l.Since(10); got != nil {
		t.Fatalf("expected nil past the end, got %+v", got)
	}
	if got := l.Since(-1); len(got) != 4 {
		t.Fatalf("expected full log for negative offset, got %d", len(got))
	}
}

func TestLogObservers(t *testing.T) {
	var seqs []int
	l := NewLog(func(seq int, ev models.CanonicalEvent) { seqs = append(seqs, seq) })
	l.Append(models.CanonicalEvent{Kind: models.KindOther, Timestamp: 1})
	l.Append(models.CanonicalEvent{Kind: models.KindOther, Timestamp: 2})
	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 1 {
		t.Fatalf("unexpected observer sequence %v", seqs)
	}
}

func TestLogConcurrentReaders(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			l.Append(models.CanonicalEvent{Kind: models.KindOther, Timestamp: int64(i + 1)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = l.All()
		}
	}()
	wg.Wait()
	if l.Len() != 500 {
		t.Fatalf("expected 500 events, got %d", l.Len())
	}
}
