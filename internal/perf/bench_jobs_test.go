package perf

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/tally/internal/jobs"
	"github.com/odyssey-erp/tally/jobs"
)

type flakyRepricer struct {
	calls  int
	failAt map[int]bool
}

func (f *flakyRepricer) RepriceDrafts(ctx context.Context, companyID int64) (int, error) {
	f.calls++
	if f.failAt[f.calls] {
		return 0, errors.New("timeout")
	}
	return 4, nil
}

func TestRepriceJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	repricer := &flakyRepricer{failAt: map[int]bool{7: true, 31: true}}
	job := jobs.NewRepriceDraftsJob(repricer, nil, metrics)

	for i := 0; i < 60; i++ {
		task, err := jobs.NewRepriceDraftsTask(int64(i%5 + 1))
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		_ = job.Handle(context.Background(), task)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	labels := map[string]string{"job": jobs.TaskRepriceDrafts}
	success := metricValue(t, families, "tally_jobs_total", map[string]string{"job": jobs.TaskRepriceDrafts, "status": "success"})
	failure := metricValue(t, families, "tally_jobs_total", map[string]string{"job": jobs.TaskRepriceDrafts, "status": "failure"})
	if success+failure != 60 {
		t.Fatalf("expected 60 executions, got %f", success+failure)
	}
	if ratio := success / (success + failure); ratio < 0.95 {
		t.Fatalf("reprice success ratio too low: %f", ratio)
	}

	if repriced := metricValue(t, families, "tally_drafts_repriced_total", nil); repriced != 58*4 {
		t.Fatalf("unexpected repriced count: %f", repriced)
	}

	if mean := histogramMean(t, families, "tally_job_duration_seconds", labels); mean > 0.5 {
		t.Fatalf("reprice duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for key, want := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = lp.GetValue() == want
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
