package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *goMFA.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goMFA.MetricsSnapshot
	AuditDropped() uint64
}

type family struct {
	def        internaldefs.Family
	attrs      []metric.ObserveOption
	instrument metric.Int64ObservableCounter
}

type histogram struct {
	def     internaldefs.HistogramDef
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	les     []metric.ObserveOption
}

// Exporter publishes engine metrics through an OTel Meter with one
// asynchronous callback per collection.
type Exporter struct {
	source       Source
	registration metric.Registration
	families     []family
	histograms   []histogram
	auditDropped metric.Int64ObservableCounter
}

// New registers the goMFA instruments on meter.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		f := family{def: def, instrument: ins, attrs: make([]metric.ObserveOption, len(def.Series))}
		for i, s := range def.Series {
			if def.Label != "" {
				f.attrs[i] = metric.WithAttributes(attribute.String(def.Label, s.Value))
			}
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket", metric.WithDescription(def.Help+" Cumulative bucket counts."))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s_bucket: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s_count: %w", def.Name, err)
		}
		h := histogram{def: def, buckets: buckets, count: count}
		for _, le := range internaldefs.BucketBounds {
			h.les = append(h.les, metric.WithAttributes(attribute.String("le", le)))
		}
		e.histograms = append(e.histograms, h)
		observables = append(observables, buckets, count)
	}

	auditDropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped under backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for i, s := range f.def.Series {
			v := int64(snapshot.Counters[s.ID])
			if f.attrs[i] == nil {
				o.ObserveInt64(f.instrument, v)
				continue
			}
			o.ObserveInt64(f.instrument, v, f.attrs[i])
		}
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.Cumulative(snapshot.Histograms[h.def.ID])
		for i, v := range cumulative {
			o.ObserveInt64(h.buckets, int64(v), h.les[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
