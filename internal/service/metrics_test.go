package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	m.RecordLogin(ResultSuccess)
	m.RecordLogin(ResultSuccess)
	m.RecordLogin(ResultFailure)
	m.RecordRegistration(ResultValidation)
	m.RecordRefresh(ResultExpired)

	if got := testutil.ToFloat64(m.logins.WithLabelValues(ResultSuccess)); got != 2 {
		t.Fatalf("expected 2 successful logins, got %v", got)
	}
	if got := testutil.ToFloat64(m.registrations.WithLabelValues(ResultValidation)); got != 1 {
		t.Fatalf("expected 1 validation error, got %v", got)
	}
	got, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got != 4 {
		t.Fatalf("expected 4 series, got %d", got)
	}
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordLogin(ResultSuccess)
	m.RecordRegistration(ResultSuccess)
	m.RecordRefresh(ResultSuccess)
}
