package circuit

import (
	"testing"
	"time"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New(3, 5*time.Second)
	if b.IsOpen("gpt-4o") {
		t.Error("expected closed circuit to not be open")
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(3, 5*time.Second)

	b.RecordFailure("gpt-4o")
	b.RecordFailure("gpt-4o")
	if b.IsOpen("gpt-4o") {
		t.Error("expected circuit to still be closed after 2 failures")
	}

	b.RecordFailure("gpt-4o") // 3rd failure = threshold
	if !b.IsOpen("gpt-4o") {
		t.Error("expected circuit open after 3 consecutive failures")
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("gpt-4o")
	if !b.IsOpen("gpt-4o") {
		t.Fatal("expected open immediately after 1 failure")
	}

	time.Sleep(15 * time.Millisecond)

	if b.IsOpen("gpt-4o") {
		t.Error("expected half-open (not open) after cooldown elapses")
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("gpt-4o")
	time.Sleep(15 * time.Millisecond)
	b.IsOpen("gpt-4o") // trigger open->half_open transition
	b.RecordSuccess("gpt-4o")

	if b.IsOpen("gpt-4o") {
		t.Error("expected closed after a successful probe")
	}
	if len(b.OpenModels()) != 0 {
		t.Error("expected no open models after reset")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(1, 10*time.Millisecond)

	b.RecordFailure("gpt-4o")
	time.Sleep(15 * time.Millisecond)
	b.IsOpen("gpt-4o")
	b.RecordFailure("gpt-4o")

	if !b.IsOpen("gpt-4o") {
		t.Error("expected reopened after failed probe")
	}
}

func TestBreaker_OpenModelsExcludesCooldownExpired(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure("gpt-4o")

	open := b.OpenModels()
	if len(open) != 1 || open[0] != "gpt-4o" {
		t.Errorf("expected [gpt-4o], got %v", open)
	}

	time.Sleep(15 * time.Millisecond)
	if len(b.OpenModels()) != 0 {
		t.Error("expected OpenModels to exclude a model past its cooldown")
	}
}

func TestBreaker_CooldownRemaining(t *testing.T) {
	b := New(1, 100*time.Millisecond)
	b.RecordFailure("gpt-4o")

	remaining := b.CooldownRemaining("gpt-4o")
	if remaining <= 0 || remaining > 100*time.Millisecond {
		t.Errorf("expected remaining in (0, 100ms], got %v", remaining)
	}
}

func TestBreaker_IndependentPerModel(t *testing.T) {
	b := New(1, 5*time.Second)
	b.RecordFailure("gpt-4o")

	if !b.IsOpen("gpt-4o") {
		t.Error("expected gpt-4o open")
	}
	if b.IsOpen("claude-opus") {
		t.Error("expected claude-opus unaffected")
	}
}
