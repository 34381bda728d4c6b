// Package detector composes feature engineering, scoring, the ensemble and the
// decision policy into the single-item and batch detection entry points.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrPanic wraps a panic recovered while scoring a transaction.
var ErrPanic = errors.New("detection panicked")

// Observer receives detection outcomes. *metrics.Recorder satisfies it.
type Observer interface {
	ObserveDetection(r *domain.FraudDetectionResult)
	ObserveFailure(err error)
	ObserveBatch(b *domain.BatchResult)
}

// Detector runs the fraud detection pipeline.
type Detector struct {
	sim     *ensemble.Simulator
	policy  *decision.Policy
	src     ensemble.Source
	workers int
	now     func() time.Time
	obs     Observer
	tracer  trace.Tracer
}

// Option configures a Detector.
type Option func(*Detector)

// WithSource pins the ensemble noise source.
func WithSource(src ensemble.Source) Option {
	return func(d *Detector) {
		d.src = src
	}
}

// WithWorkers bounds batch parallelism. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(d *Detector) {
		d.workers = n
	}
}

// WithClock replaces the wall clock used for processing times.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(d *Detector) {
		d.obs = o
	}
}

// New creates a detector over a simulator and a decision policy.
func New(sim *ensemble.Simulator, policy *decision.Policy, opts ...Option) (*Detector, error) {
	if sim == nil {
		return nil, fmt.Errorf("ensemble simulator is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("decision policy is required")
	}

	d := &Detector{
		sim:     sim,
		policy:  policy,
		workers: 1,
		now:     time.Now,
		tracer:  otel.Tracer("kestrel/detector"),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.workers < 1 {
		d.workers = 1
	}
	if d.src == nil {
		d.src = ensemble.NewSource(0)
	}
	if _, locked := d.src.(*ensemble.LockedSource); !locked && d.workers > 1 {
		d.src = ensemble.NewLockedSource(d.src)
	}
	return d, nil
}

// Members returns the ensemble members in blend order.
func (d *Detector) Members() []ensemble.Member {
	return d.sim.Members()
}

// Uncertainty returns the shared jitter amplitude of the ensemble.
func (d *Detector) Uncertainty() float64 {
	return d.sim.Uncertainty()
}

// Workers returns the batch parallelism.
func (d *Detector) Workers() int {
	return d.workers
}

// Detect scores one transaction.
// A missing field yields a *domain.ValidationError before any feature is derived.
func (d *Detector) Detect(ctx context.Context, tx *domain.TransactionInput) (*domain.FraudDetectionResult, error) {
	ctx, span := d.tracer.Start(ctx, "detector.Detect")
	defer span.End()

	result, err := d.detect(ctx, tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if d.obs != nil {
			d.obs.ObserveFailure(err)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("fraud_probability", result.FraudProbability),
		attribute.Int("risk_score", result.RiskScore),
		attribute.Bool("is_fraud_predicted", result.IsFraudPredicted),
	)
	if d.obs != nil {
		d.obs.ObserveDetection(result)
	}
	return result, nil
}

// detect is the path shared by Detect and every batch item.
func (d *Detector) detect(ctx context.Context, tx *domain.TransactionInput) (result *domain.FraudDetectionResult, err error) {
	start := d.now()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, &domain.ValidationError{Field: domain.RequiredFields[0]}
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	fv, err := features.Engineer(tx)
	if err != nil {
		return nil, err
	}

	out := d.sim.Simulate(scoring.BaseScore(fv), d.src)
	if math.IsNaN(out.Probability) || math.IsInf(out.Probability, 0) {
		return nil, fmt.Errorf("ensemble: %w", domain.ErrNumeric)
	}

	dec := d.policy.Decide(out.Probability, fv)

	return &domain.FraudDetectionResult{
		IsFraudPredicted: dec.IsFraud,
		FraudProbability: out.Probability,
		RiskScore:        dec.RiskScore,
		Confidence:       out.Confidence,
		ModelPredictions: out.Predictions,
		RiskFactors:      dec.RiskFactors,
		Recommendation:   dec.Recommendation,
		ProcessingTimeMs: elapsedMs(start, d.now()),
	}, nil
}

func elapsedMs(start, end time.Time) int64 {
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
