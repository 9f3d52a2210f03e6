package prometheus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goMFA "github.com/MrEthical07/goMFA"
)

type fakeSource struct {
	snapshot goMFA.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goMFA.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                   { return f.dropped }

func emptySnapshot() goMFA.MetricsSnapshot {
	return goMFA.MetricsSnapshot{
		Counters:   map[goMFA.MetricID]uint64{},
		Histograms: map[goMFA.MetricID][]uint64{},
	}
}

func TestRenderEmptyWhenNothingRecorded(t *testing.T) {
	exp := New(fakeSource{snapshot: emptySnapshot()})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
	if got := (*Exporter)(nil).Render(); got != "" {
		t.Fatal("nil exporter must render nothing")
	}
}

func TestRenderFamiliesAndHistogram(t *testing.T) {
	exp := New(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters: map[goMFA.MetricID]uint64{
				goMFA.MetricLoginSuccess:           7,
				goMFA.MetricOTPReuseRejected:       4,
				goMFA.MetricPasswordPolicyRejected: 2,
			},
			Histograms: map[goMFA.MetricID][]uint64{
				goMFA.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	for _, want := range []string{
		"# TYPE gomfa_login_total counter",
		`gomfa_login_total{result="success"} 7`,
		`gomfa_login_total{result="locked"} 0`,
		`gomfa_otp_total{outcome="reused"} 4`,
		"gomfa_password_policy_rejected_total 2",
		`gomfa_validate_latency_seconds_bucket{le="0.005"} 1`,
		`gomfa_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"gomfa_validate_latency_seconds_count 36",
		"gomfa_dispatch_latency_seconds_count 0",
		"gomfa_audit_dropped_total 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRenderFromEngine(t *testing.T) {
	var src Source = (*goMFA.Engine)(nil)
	if got := New(src).Render(); got != "" {
		t.Fatalf("unbuilt engine must render nothing, got:\n%s", got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestWriteToReportsWriterError(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[goMFA.MetricOTPIssued] = 1
	if err := New(fakeSource{snapshot: snap}).WriteTo(failingWriter{}); err == nil {
		t.Fatal("expected writer error")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	snap := emptySnapshot()
	snap.Counters[goMFA.MetricLoginSuccess] = 1
	exp := New(fakeSource{snapshot: snap})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `gomfa_login_total{result="success"} 1`) {
		t.Fatalf("unexpected response %d:\n%s", rec.Code, rec.Body)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := New(fakeSource{
		snapshot: goMFA.MetricsSnapshot{
			Counters: map[goMFA.MetricID]uint64{
				goMFA.MetricLoginSuccess:     1000,
				goMFA.MetricLoginFailure:     40,
				goMFA.MetricOTPIssued:        800,
				goMFA.MetricOTPValidated:     780,
				goMFA.MetricOTPIncorrect:     20,
				goMFA.MetricOTPReuseRejected: 3,
				goMFA.MetricAccountLocked:    1,
			},
			Histograms: map[goMFA.MetricID][]uint64{
				goMFA.MetricValidateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
