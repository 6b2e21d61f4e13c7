package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FrameSent("L2")
	m.FrameSent("L2")
	m.FrameSent("L1")
	m.FrameReceived("L2")
	m.FrameCorrupt("checksum_mismatch")
	m.TickLag(250 * time.Millisecond)

	testCases := []struct {
		name string
		got  float64
		want float64
	}{
		{"sent L2", testutil.ToFloat64(m.framesSent.WithLabelValues("L2")), 2},
		{"sent L1", testutil.ToFloat64(m.framesSent.WithLabelValues("L1")), 1},
		{"received L2", testutil.ToFloat64(m.framesReceived.WithLabelValues("L2")), 1},
		{"corrupt", testutil.ToFloat64(m.framesCorrupt.WithLabelValues("checksum_mismatch")), 1},
		{"tick lag", testutil.ToFloat64(m.tickLag), 0.25},
	}

	for _, tc := range testCases {
		if tc.got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, tc.got)
		}
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	m.FrameSent("L2")
	m.FrameReceived("L2")
	m.FrameCorrupt("bad_field")
	m.TickLag(time.Second)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FrameCorrupt("field_count")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `frames_corrupt_total{reason="field_count"} 1`) {
		t.Errorf("expected corrupt counter in output, got:\n%s", body)
	}
}
