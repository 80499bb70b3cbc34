package extraction

import (
	"context"
	"testing"
	"time"

	"vidbridge/models"
)

func drainOne(t *testing.T, w *Watcher) models.ProgressEvent {
	t.Helper()
	ev, ok, err := w.Next(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("Next timed out with nothing pending")
	}
	return ev
}

func TestJobProgressMonotone(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()
	w := job.Attach()
	defer w.Close()

	job.Emit(models.ProgressEvent{Phase: models.PhaseConnecting, Progress: 15})
	job.Emit(models.ProgressEvent{Phase: models.PhaseNavigating, Progress: 35})
	// A late emitter reporting a lower number must not move progress back.
	job.Emit(models.ProgressEvent{Phase: models.PhaseBypassing, Progress: 20})

	if got := drainOne(t, w).Progress; got != 15 {
		t.Errorf("first progress = %d, want 15", got)
	}
	if got := drainOne(t, w).Progress; got != 35 {
		t.Errorf("second progress = %d, want 35", got)
	}
	if got := drainOne(t, w).Progress; got != 35 {
		t.Errorf("clamped progress = %d, want 35", got)
	}
}

func TestJobSingleTerminal(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()
	w := job.Attach()
	defer w.Close()

	job.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100})
	job.Emit(models.ProgressEvent{Phase: models.PhaseError, Progress: 100,
		Error: &models.EventError{Kind: "internal", Message: "late"}})

	ev := drainOne(t, w)
	if ev.Phase != models.PhaseComplete {
		t.Fatalf("terminal phase = %v, want complete", ev.Phase)
	}
	if _, ok, _ := w.Next(context.Background(), 50*time.Millisecond); ok {
		t.Fatal("event after terminal must be dropped")
	}

	select {
	case <-job.Done():
	default:
		t.Fatal("Done must be closed after terminal event")
	}
}

func TestWatcherOverflowDropsSamePhaseFirst(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()
	w := job.Attach()
	defer w.Close()

	for i := 0; i < watcherQueueCap; i++ {
		job.Emit(models.ProgressEvent{Phase: models.PhaseExtracting, Progress: 80, Message: "tick"})
	}
	// Queue is full; the terminal event must still arrive.
	job.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100})

	sawTerminal := false
	for {
		ev, ok, err := w.Next(context.Background(), 100*time.Millisecond)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if ev.Phase.Terminal() {
			sawTerminal = true
		}
	}
	if !sawTerminal {
		t.Fatal("terminal event was dropped on overflow")
	}
}

func TestAttachReplaysLatestEvent(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()

	job.Emit(models.ProgressEvent{Phase: models.PhaseConnecting, Progress: 15})
	job.Emit(models.ProgressEvent{Phase: models.PhaseNavigating, Progress: 35})

	w := job.Attach()
	defer w.Close()

	ev := drainOne(t, w)
	if ev.Phase != models.PhaseNavigating || ev.Progress != 35 {
		t.Errorf("snapshot = %v(%d), want navigating(35)", ev.Phase, ev.Progress)
	}
}

func TestTerminalReplayWithinGrace(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()
	job.Emit(models.ProgressEvent{Phase: models.PhaseError, Progress: 100,
		Error: &models.EventError{Kind: "canceled", Message: "caller went away"}})

	// A reconnect after the terminal event still gets it.
	if _, ok := reg.Get(job.ID); !ok {
		t.Fatal("job must remain resolvable during the grace window")
	}
	w := job.Attach()
	defer w.Close()

	ev := drainOne(t, w)
	if ev.Phase != models.PhaseError || ev.Error == nil || ev.Error.Kind != "canceled" {
		t.Fatalf("replayed event = %+v", ev)
	}
}

func TestRegistryRemovesAfterGrace(t *testing.T) {
	reg := NewRegistry(30 * time.Millisecond)
	job := reg.NewJob()
	job.Emit(models.ProgressEvent{Phase: models.PhaseComplete, Progress: 100})

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := reg.Get(job.ID); !ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("job not removed after grace window")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFinishSwitchedEndsJobWithoutEvent(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()
	w := job.Attach()
	defer w.Close()

	job.SetFollowUp("follow-123")
	job.Emit(models.ProgressEvent{Phase: models.PhaseAutoSwitch, Progress: 80, Message: "retrying on embed.su"})
	job.FinishSwitched()

	ev := drainOne(t, w)
	if ev.Phase != models.PhaseAutoSwitch {
		t.Fatalf("phase = %v, want autoswitch", ev.Phase)
	}
	if job.FollowUp() != "follow-123" {
		t.Errorf("follow-up = %q", job.FollowUp())
	}
	select {
	case <-job.Done():
	default:
		t.Fatal("switched job must count as done")
	}
	if n := reg.ActiveCount(); n != 0 {
		t.Errorf("active count = %d, want 0", n)
	}
}

func TestFanOutDeliversToAllWatchers(t *testing.T) {
	reg := NewRegistry(time.Minute)
	job := reg.NewJob()
	w1 := job.Attach()
	w2 := job.Attach()
	defer w1.Close()
	defer w2.Close()

	job.Emit(models.ProgressEvent{Phase: models.PhaseExtracting, Progress: 80})

	for _, w := range []*Watcher{w1, w2} {
		ev := drainOne(t, w)
		if ev.Phase != models.PhaseExtracting {
			t.Errorf("watcher got %v, want extracting", ev.Phase)
		}
		if ev.RequestID != job.ID {
			t.Errorf("requestId = %q, want %q", ev.RequestID, job.ID)
		}
	}
}
