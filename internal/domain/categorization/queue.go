package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	classifierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_classifier_requests_total",
		Help: "Classifier calls by result.",
	}, []string{"result"})

	classifierDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_classifier_duration_seconds",
		Help:    "Latency of classifier calls, including rate-limit wait.",
		Buckets: prometheus.DefBuckets,
	})
)

var tracer = otel.Tracer("github.com/FACorreiaa/statement-ledger/internal/domain/categorization")

// QueueConfig bounds classifier traffic.
type QueueConfig struct {
	// Delay is the minimum spacing between two calls. Zero disables spacing.
	Delay time.Duration
	// Concurrency caps in-flight calls. Values below one mean one.
	Concurrency int
	// Timeout bounds a single call. Zero means no per-call timeout.
	Timeout time.Duration
}

// Queue serializes access to a Classifier behind a rate limiter and a concurrency cap.
type Queue struct {
	classifier Classifier
	limiter    *rate.Limiter
	slots      chan struct{}
	timeout    time.Duration
	logger     *slog.Logger
}

// NewQueue wraps c. A nil classifier yields a nil queue, which the engine treats as disabled.
func NewQueue(c Classifier, cfg QueueConfig, logger *slog.Logger) *Queue {
	if c == nil {
		return nil
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	concurrency := max(cfg.Concurrency, 1)

	return &Queue{
		classifier: c,
		limiter:    rate.NewLimiter(limit, 1),
		slots:      make(chan struct{}, concurrency),
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// Concurrency returns the in-flight cap.
func (q *Queue) Concurrency() int {
	return cap(q.slots)
}

// Classify waits for a slot and a rate-limit token, then calls the classifier.
func (q *Queue) Classify(ctx context.Context, req Request) (*Suggestion, error) {
	ctx, span := tracer.Start(ctx, "classifier.Classify")
	defer span.End()
	span.SetAttributes(attribute.Int("classifier.categories", len(req.Categories)))

	start := time.Now()
	defer func() { classifierDuration.Observe(time.Since(start).Seconds()) }()

	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		classifierRequests.WithLabelValues("cancelled").Inc()
		return nil, ctx.Err()
	}
	defer func() { <-q.slots }()

	if err := q.limiter.Wait(ctx); err != nil {
		classifierRequests.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("failed to wait for classifier slot: %w", err)
	}

	callCtx := ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	s, err := q.classifier.Classify(callCtx, req)
	if err == nil && s == nil {
		err = fmt.Errorf("%w: empty response", ErrNoSuggestion)
	}
	switch {
	case err == nil:
		classifierRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNoSuggestion):
		classifierRequests.WithLabelValues("malformed").Inc()
	default:
		classifierRequests.WithLabelValues("error").Inc()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("classifier.category", s.Category))
	return s, nil
}

// ClassifyAll fans requests out up to the queue's concurrency. A failed request leaves
// a nil suggestion at its index and is logged. Only context cancellation is returned.
func (q *Queue) ClassifyAll(ctx context.Context, reqs []Request) ([]*Suggestion, error) {
	out := make([]*Suggestion, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.Concurrency())
	for i := range reqs {
		g.Go(func() error {
			s, err := q.Classify(gctx, reqs[i])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				q.logger.Warn("classifier request failed", "index", i, "error", err)
				return nil
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
