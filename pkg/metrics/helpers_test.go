package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// sample returns the series of family name whose labels include every pair
// in want, or nil when no such series was gathered.
func sample(t *testing.T, g prometheus.Gatherer, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, series := range family.GetMetric() {
			if hasLabels(series, want) {
				return series
			}
		}
	}
	return nil
}

func hasLabels(series *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(series.GetLabel()))
	for _, pair := range series.GetLabel() {
		got[pair.GetName()] = pair.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string, want map[string]string) float64 {
	t.Helper()
	series := sample(t, g, name, want)
	if series == nil {
		t.Fatalf("%s%v not gathered", name, want)
	}
	return series.GetCounter().GetValue()
}
