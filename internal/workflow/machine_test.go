package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reticle/internal/logging"
	"reticle/internal/search"
	"reticle/internal/workflow"
)

var allStates = []workflow.State{
	workflow.NotStarted, workflow.Detecting, workflow.Detected, workflow.Confirming,
	workflow.Confirmed, workflow.Searching, workflow.Searched,
}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]workflow.State]bool{}
	for _, pair := range [][2]workflow.State{
		{workflow.NotStarted, workflow.Detecting},
		{workflow.Detecting, workflow.Detected},
		{workflow.Detecting, workflow.Confirming},
		{workflow.Detected, workflow.Detecting},
		{workflow.Detected, workflow.Confirming},
		{workflow.Confirming, workflow.Confirmed},
		{workflow.Confirming, workflow.Detecting},
		{workflow.Confirming, workflow.Detected},
		{workflow.Confirmed, workflow.Searching},
		{workflow.Confirmed, workflow.Confirming},
		{workflow.Confirmed, workflow.Detecting},
		{workflow.Confirmed, workflow.Detected},
		{workflow.Searching, workflow.Searched},
		{workflow.Searching, workflow.Detecting},
		{workflow.Searched, workflow.Detecting},
	} {
		allowed[pair] = true
	}
	for _, from := range allStates {
		if from != workflow.NotStarted {
			allowed[[2]workflow.State{from, workflow.NotStarted}] = true
		}
	}

	for _, from := range allStates {
		for _, to := range allStates {
			if from == to {
				continue
			}
			want := allowed[[2]workflow.State{from, to}]
			if got := workflow.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestSearchingOnlyReachableFromConfirmed(t *testing.T) {
	for _, from := range allStates {
		if workflow.CanTransition(from, workflow.Searching) && from != workflow.Confirmed {
			t.Fatalf("SEARCHING reachable from %s", from)
		}
	}
}

func TestSetRejectsInvalidAndIgnoresRepeats(t *testing.T) {
	m := workflow.New(logging.NewNop())

	if _, err := m.Set(workflow.Confirmed, "skip ahead"); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if m.State() != workflow.NotStarted {
		t.Fatalf("rejected transition must not change state, got %s", m.State())
	}

	changed, err := m.Set(workflow.Detecting, "session started")
	if err != nil || !changed {
		t.Fatalf("expected transition, got changed=%v err=%v", changed, err)
	}
	changed, err = m.Set(workflow.Detecting, "again")
	if err != nil || changed {
		t.Fatalf("repeat must be a no-op, got changed=%v err=%v", changed, err)
	}
	if v := m.Snapshot().Version; v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
}

func TestHistoryIsStampedAndBounded(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := workflow.New(logging.NewNop(), workflow.WithHistory(3), workflow.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	steps := []workflow.State{workflow.Detecting, workflow.Confirming, workflow.Confirmed, workflow.Searching, workflow.Searched}
	for _, s := range steps {
		if _, err := m.Set(s, "step"); err != nil {
			t.Fatalf("Set(%s): %v", s, err)
		}
	}
	history := m.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 retained transitions, got %d", len(history))
	}
	if history[0].To != workflow.Confirmed || history[2].To != workflow.Searched {
		t.Fatalf("unexpected retained history: %+v", history)
	}
	if !history[1].At.After(history[0].At) || history[2].Version != 5 {
		t.Fatalf("expected increasing stamps and versions: %+v", history)
	}
}

func TestSubscriptionIsLastWriteWins(t *testing.T) {
	m := workflow.New(logging.NewNop())
	sub := m.Subscribe()
	defer sub.Close()

	if s := <-sub.States(); s != workflow.NotStarted {
		t.Fatalf("expected initial state, got %s", s)
	}
	for _, s := range []workflow.State{workflow.Detecting, workflow.Confirming, workflow.Confirmed} {
		if _, err := m.Set(s, "test"); err != nil {
			t.Fatalf("Set(%s): %v", s, err)
		}
	}
	if s := <-sub.States(); s != workflow.Confirmed {
		t.Fatalf("expected latest state CONFIRMED, got %s", s)
	}
	select {
	case s := <-sub.States():
		t.Fatalf("expected empty mailbox, got %s", s)
	default:
	}

	m.Publish(workflow.Entity{Kind: workflow.EntityConfirmed})
	m.Publish(workflow.Entity{Kind: workflow.EntitySearched, Products: []search.Product{{Title: "Mug"}}})
	evt := <-sub.Entities()
	if evt.Kind != workflow.EntitySearched || len(evt.Products) != 1 {
		t.Fatalf("expected latest entity event, got %+v", evt)
	}
	if last, ok := m.LastEntity(); !ok || last.Kind != workflow.EntitySearched {
		t.Fatalf("unexpected retained entity: %+v", last)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	m := workflow.New(logging.NewNop())
	sub := m.Subscribe()
	m.Unsubscribe(sub)
	sub.Close()

	<-sub.States()
	if _, ok := <-sub.States(); ok {
		t.Fatal("expected closed states channel")
	}
	if _, err := m.Set(workflow.Detecting, "after unsubscribe"); err != nil {
		t.Fatalf("Set after unsubscribe: %v", err)
	}
}

func TestWaitReturnsOnTransition(t *testing.T) {
	m := workflow.New(logging.NewNop())
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = m.Set(workflow.Detecting, "start")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := m.Wait(ctx, 0)
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if snap.State != workflow.Detecting || snap.Version != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	if _, err := m.Wait(short, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestParseStateRoundTrip(t *testing.T) {
	for _, s := range allStates {
		text, _ := s.MarshalText()
		var parsed workflow.State
		if err := parsed.UnmarshalText(text); err != nil || parsed != s {
			t.Fatalf("round trip %s: got %s err=%v", s, parsed, err)
		}
	}
	if _, err := workflow.ParseState("LOST"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCameraFrozen(t *testing.T) {
	if !workflow.Confirmed.CameraFrozen(true) || workflow.Confirmed.CameraFrozen(false) {
		t.Fatal("CONFIRMED freezes the camera only in auto mode")
	}
	if !workflow.Searched.CameraFrozen(false) || workflow.Detecting.CameraFrozen(true) {
		t.Fatal("unexpected freeze policy")
	}
}
