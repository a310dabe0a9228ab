package prometheus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "dispatch", true, 3*time.Millisecond)
	rec.Observe(ctx, "dispatch", true, 5*time.Millisecond)
	rec.Observe(ctx, "dispatch", false, time.Millisecond)
	rec.Observe(ctx, "recover", true, time.Millisecond)
	rec.Observe(ctx, "", true, time.Millisecond)

	if got := testutil.ToFloat64(rec.requests.WithLabelValues("dispatch", "success")); got != 2 {
		t.Fatalf("expected 2 successful dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(rec.requests.WithLabelValues("dispatch", "error")); got != 1 {
		t.Fatalf("expected 1 failed dispatch, got %v", got)
	}
	if got := testutil.CollectAndCount(rec.requests); got != 3 {
		t.Fatalf("expected 3 request series, got %d", got)
	}
	if got := testutil.CollectAndCount(rec.duration, "estatecore_request_duration_seconds"); got != 2 {
		t.Fatalf("expected 2 histogram series, got %d", got)
	}
}

func TestRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRecorder(reg, "estate"); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewRecorder(reg, "estate"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, err := NewRecorder(nil, ""); err != nil {
		t.Fatalf("nil registerer: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg, "")
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	rec.Observe(context.Background(), "dispatch", true, time.Millisecond)
	path := filepath.Join(t.TempDir(), "estatecore.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), `estatecore_requests_total{operation="dispatch",result="success"} 1`) {
		t.Fatalf("unexpected textfile:\n%s", raw)
	}
}
