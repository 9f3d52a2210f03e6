package prometheus

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/metrics/export/internaldefs"
)

// Source is what the exporter reads on every scrape. *goMFA.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goMFA.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in the Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New returns an Exporter reading from source.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		bw := bufio.NewWriter(w)
		_ = p.WriteTo(bw)
		_ = bw.Flush()
	})
}

// Render returns the exposition text. It is empty when metrics are disabled
// and nothing has been recorded.
func (p *Exporter) Render() string {
	var b strings.Builder
	_ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the exposition text to w.
func (p *Exporter) WriteTo(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}
	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return nil
	}

	ew := &errWriter{w: w}
	for _, fam := range internaldefs.Families {
		ew.header(fam.Name, fam.Help, "counter")
		for _, s := range fam.Series {
			if fam.Label == "" {
				ew.printf("%s %d\n", fam.Name, snapshot.Counters[s.ID])
				continue
			}
			ew.printf("%s{%s=%q} %d\n", fam.Name, fam.Label, s.Value, snapshot.Counters[s.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.Cumulative(snapshot.Histograms[def.ID])
		ew.header(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.BucketBounds {
			ew.printf("%s_bucket{le=%q} %d\n", def.Name, le, cumulative[i])
		}
		// Sample sums are not tracked in process.
		ew.printf("%s_count %d\n", def.Name, cumulative[len(cumulative)-1])
	}

	ew.header(internaldefs.AuditDroppedName, "Audit events dropped under backpressure.", "counter")
	ew.printf("%s %d\n", internaldefs.AuditDroppedName, dropped)
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func (e *errWriter) header(name, help, kind string) {
	e.printf("# HELP %s %s\n# TYPE %s %s\n", name, escapeHelp(help), name, kind)
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
