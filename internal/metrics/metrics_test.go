package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterExposesNamespacedCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	TorrentDownloadsTotal.WithLabelValues("ok").Inc()
	CacheHitsTotal.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), "zamunda_") {
			t.Fatalf("metric %q outside the zamunda namespace", family.GetName())
		}
		names[family.GetName()] = true
	}
	for _, want := range []string{"zamunda_torrent_downloads_total", "zamunda_cache_hits_total"} {
		if !names[want] {
			t.Fatalf("missing %s in %v", want, names)
		}
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	Register(reg)
}
