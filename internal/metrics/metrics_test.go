package metrics

import "testing"

func TestMetrics_RecordSuccessUpdatesModelAndSession(t *testing.T) {
	m := New()
	m.RecordSuccess("gpt-4o", "openai", 120, 42)

	stats := m.ModelStats("gpt-4o")
	if stats.Queries != 1 || stats.Successes != 1 || stats.Failures != 0 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.TotalLatencyMs != 120 {
		t.Errorf("expected TotalLatencyMs 120, got %d", stats.TotalLatencyMs)
	}
	if stats.AvgLatencyMs() != 120 {
		t.Errorf("expected AvgLatencyMs 120, got %v", stats.AvgLatencyMs())
	}
	if stats.SuccessRate() != 1.0 {
		t.Errorf("expected SuccessRate 1.0, got %v", stats.SuccessRate())
	}

	session := m.Session()
	if session.TotalQueries != 1 || session.TotalFailures != 0 {
		t.Errorf("unexpected session: %+v", session)
	}
}

func TestMetrics_RecordFailureUpdatesModelAndSession(t *testing.T) {
	m := New()
	m.RecordFailure("claude-opus-4-6", "anthropic", 0)

	stats := m.ModelStats("claude-opus-4-6")
	if stats.Queries != 1 || stats.Failures != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.SuccessRate() != 0 {
		t.Errorf("expected SuccessRate 0, got %v", stats.SuccessRate())
	}

	session := m.Session()
	if session.TotalQueries != 1 || session.TotalFailures != 1 {
		t.Errorf("unexpected session: %+v", session)
	}
}

func TestMetrics_RecordCacheHitUpdatesSessionSavings(t *testing.T) {
	m := New()
	m.RecordCacheHit("gpt-4o", "openai", 30)

	stats := m.ModelStats("gpt-4o")
	if stats.Queries != 1 || stats.Successes != 1 || stats.TotalLatencyMs != 0 {
		t.Errorf("expected zero-latency success, got %+v", stats)
	}

	session := m.Session()
	if session.CacheHits != 1 || session.CacheTokensSaved != 30 {
		t.Errorf("expected one cache hit saving 30 tokens, got %+v", session)
	}
}

func TestModelStats_ZeroValueHasFullSuccessRateAndNoQueries(t *testing.T) {
	m := New()
	stats := m.ModelStats("never-queried")
	if stats.Queries != 0 {
		t.Errorf("expected zero queries, got %d", stats.Queries)
	}
	if stats.SuccessRate() != 1.0 {
		t.Errorf("expected SuccessRate 1.0 for unqueried model, got %v", stats.SuccessRate())
	}
	if stats.AvgLatencyMs() != 0 {
		t.Errorf("expected AvgLatencyMs 0 for unqueried model, got %v", stats.AvgLatencyMs())
	}
}

func TestMetrics_IndependentInstancesDoNotCollideOnRegistration(t *testing.T) {
	m1 := New()
	m2 := New()
	m1.RecordSuccess("m", "p", 1, 1)
	m2.RecordSuccess("m", "p", 1, 1)
}
