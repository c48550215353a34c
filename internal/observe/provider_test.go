package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestProviderConfig_Resource(t *testing.T) {
	cfg := ProviderConfig{
		ServiceVersion: "1.2.3",
		InstanceID:     "replica-a",
		Attributes:     map[string]string{"lisible.cache.backend": "disk"},
	}
	res, err := cfg.Resource()
	if err != nil {
		t.Fatalf("Resource: %v", err)
	}

	want := map[string]string{
		string(semconv.ServiceNameKey):       "lisible",
		string(semconv.ServiceVersionKey):    "1.2.3",
		string(semconv.ServiceInstanceIDKey): "replica-a",
		"lisible.cache.backend":              "disk",
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestInitProvider_ServesLisibleMetrics(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	reg := prometheus.NewRegistry()
	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		InstanceID:     "replica-a",
		Attributes:     map[string]string{"lisible.recordings.source": "file"},
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordResolution(context.Background(), "cached")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	var resolutions *dto.MetricFamily
	for name, f := range byName {
		if strings.HasPrefix(name, "lisible_voice_resolutions") {
			resolutions = f
		}
	}
	if resolutions == nil {
		t.Fatalf("no lisible_voice_resolutions family in %v", keys(byName))
	}
	if got := resolutions.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("resolutions = %v, want 1", got)
	}

	info, ok := byName["target_info"]
	if !ok {
		t.Fatalf("no target_info family in %v", keys(byName))
	}
	labels := map[string]string{}
	for _, lp := range info.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["lisible_recordings_source"] != "file" {
		t.Errorf("target_info labels = %v", labels)
	}
}

func keys(m map[string]*dto.MetricFamily) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
