package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	authclient "github.com/versini-org/auth-client"
	"github.com/versini-org/auth-client/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authclient.MetricsSnapshot
	AuditDropped() uint64
}

// observation writes one family of values from a snapshot.
type observation func(metric.Observer, authclient.MetricsSnapshot)

// Exporter reports a Manager's session metrics through an OTel Meter.
// Counters become observable counters. Each latency histogram becomes a
// "_bucket" gauge with one "le" attribute per bound plus a "_count" gauge.
type Exporter struct {
	source       metricsSource
	observations []observation
	registration metric.Registration
}

// NewExporter registers instruments for m on meter.
func NewExporter(meter metric.Meter, m *authclient.Manager) (*Exporter, error) {
	if m == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, m)
}

// NewExporterFromSource is NewExporter for anything that reports a snapshot
// and a dropped audit count.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		obs, ins, err := sessionCounter(meter, def)
		if err != nil {
			return nil, err
		}
		e.observations = append(e.observations, obs)
		instruments = append(instruments, ins)
	}

	labels := bucketAttributes()
	for _, def := range internaldefs.HistogramDefs {
		obs, ins, err := latencyHistogram(meter, def, labels)
		if err != nil {
			return nil, err
		}
		e.observations = append(e.observations, obs)
		instruments = append(instruments, ins...)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events that never reached the sink."),
	)
	if err != nil {
		return nil, fmt.Errorf("otel: %s: %w", internaldefs.AuditDroppedName, err)
	}
	instruments = append(instruments, dropped)

	e.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := e.source.MetricsSnapshot()
		for _, observe := range e.observations {
			observe(o, snap)
		}
		o.ObserveInt64(dropped, int64(e.source.AuditDropped()))
		return nil
	}, instruments...)
	if err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func sessionCounter(meter metric.Meter, def internaldefs.CounterDef) (observation, metric.Observable, error) {
	ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: %s: %w", def.Name, err)
	}
	id := def.ID
	return func(o metric.Observer, snap authclient.MetricsSnapshot) {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}, ins, nil
}

func latencyHistogram(meter metric.Meter, def internaldefs.HistogramDef, labels []metric.ObserveOption) (observation, []metric.Observable, error) {
	buckets, err := meter.Int64ObservableGauge(
		def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative count per upper bound."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("otel: %s_bucket: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
	if err != nil {
		return nil, nil, fmt.Errorf("otel: %s_count: %w", def.Name, err)
	}

	id := def.ID
	return func(o metric.Observer, snap authclient.MetricsSnapshot) {
		raw, ok := snap.Histograms[id]
		if !ok {
			return
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, opt := range labels {
			o.ObserveInt64(buckets, int64(cumulative[i]), opt)
		}
		o.ObserveInt64(count, int64(cumulative[len(cumulative)-1]))
	}, []metric.Observable{buckets, count}, nil
}

func bucketAttributes() []metric.ObserveOption {
	les := internaldefs.BucketLabels()
	out := make([]metric.ObserveOption, len(les))
	for i, le := range les {
		out[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", le)))
	}
	return out
}

// Close stops reporting. The Manager is unaffected.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
