// Package service orchestrates statement imports: parse, normalize, categorize, then
// persist through the identity policy.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/storage"
)

// DefaultMaxErrors is how many row errors a Summary reports.
const DefaultMaxErrors = 10

var (
	importRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_import_rows_total",
		Help: "Imported statement rows by outcome.",
	}, []string{"outcome"})

	importDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_import_duration_seconds",
		Help:    "Duration of import operations.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})
)

var tracer = otel.Tracer("github.com/FACorreiaa/statement-ledger/internal/domain/import/service")

// Categorizer is the part of the categorization service an import needs.
type Categorizer interface {
	Snapshot(ctx context.Context) (*categorization.Snapshot, error)
	Categorize(ctx context.Context, tx *ledger.Transaction, snap *categorization.Snapshot) categorization.Result
	EnsureDefaults(ctx context.Context) (int, error)
	EnsureCategory(ctx context.Context, name string) (*categorization.Category, error)
}

// Preview is one categorized row awaiting review.
type Preview struct {
	Transaction      StatementLine             `json:"transaction"`
	AICategory       string                    `json:"aiCategory"`
	AIConfidence     categorization.Confidence `json:"aiConfidence"`
	AIReasoning      string                    `json:"aiReasoning"`
	Source           categorization.Source     `json:"source"`
	SelectedCategory string                    `json:"selectedCategory"`
}

// PreviewResult is the review state of one uploaded file.
type PreviewResult struct {
	FileType    parser.FileType  `json:"fileType"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	ArchiveID   *uuid.UUID       `json:"archiveId,omitempty"`
	Previews    []Preview        `json:"previews"`
	Stats       normalizer.Stats `json:"stats"`
}

// Summary reports a persisted batch. Errors holds at most the configured number of
// messages while Failed counts every failed row.
type Summary struct {
	TotalRows          int      `json:"totalRows"`
	ValidRows          int      `json:"validRows"`
	Inserted           int      `json:"inserted"`
	Updated            int      `json:"updated"`
	Failed             int      `json:"failed"`
	CorrectionsLearned int      `json:"correctionsLearned"`
	Errors             []string `json:"errors,omitempty"`
}

func (s *Summary) fail(limit int, line int, err error) {
	s.Failed++
	if len(s.Errors) < limit {
		s.Errors = append(s.Errors, fmt.Sprintf("row %d: %v", line, err))
	}
}

// ImportService runs the import pipeline.
type ImportService struct {
	repo        ledger.Repository
	categorizer Categorizer
	corrections corrections.Store
	normalizer  *normalizer.Normalizer
	archive     storage.Storage
	maxErrors   int
	logger      *slog.Logger
}

// Option configures an ImportService.
type Option func(*ImportService)

// WithArchive keeps a copy of every previewed file.
func WithArchive(s storage.Storage) Option {
	return func(svc *ImportService) { svc.archive = s }
}

// WithMaxErrors caps the row errors a Summary carries.
func WithMaxErrors(n int) Option {
	return func(svc *ImportService) {
		if n > 0 {
			svc.maxErrors = n
		}
	}
}

// NewImportService creates an import service. A nil normalizer reads dates in the default timezone.
func NewImportService(repo ledger.Repository, categorizer Categorizer, store corrections.Store, norm *normalizer.Normalizer, logger *slog.Logger, opts ...Option) *ImportService {
	if norm == nil {
		loc, err := normalizer.LoadLocation(normalizer.DefaultTimezone)
		if err != nil {
			loc = time.UTC
		}
		norm = normalizer.New(loc)
	}
	svc := &ImportService{
		repo:        repo,
		categorizer: categorizer,
		corrections: store,
		normalizer:  norm,
		maxErrors:   DefaultMaxErrors,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Preview parses and categorizes a file without persisting anything. Rows are processed
// in file order; on cancellation the rows done so far are returned with the context error.
func (s *ImportService) Preview(ctx context.Context, filename string, data []byte) (*PreviewResult, error) {
	ctx, span := tracer.Start(ctx, "import.Preview")
	defer span.End()
	defer observe("preview", time.Now())

	table, err := parser.Parse(filename, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("file.type", string(table.Type)),
		attribute.Int("rows.total", len(table.Rows)),
	)

	result := &PreviewResult{
		FileType:    table.Type,
		Fingerprint: table.Fingerprint,
		Previews:    make([]Preview, 0, len(table.Rows)),
	}
	result.ArchiveID = s.archiveFile(ctx, filename, table.Type, data)

	snap, err := s.categorizer.Snapshot(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load categorization rules: %w", err)
	}

	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tx, ok := s.normalizer.NormalizeRow(row.Values)
		result.Stats.Observe(tx, ok)
		if !ok {
			importRows.WithLabelValues("rejected").Inc()
			continue
		}

		res := s.categorizer.Categorize(ctx, tx, snap)
		result.Previews = append(result.Previews, Preview{
			Transaction:      lineFrom(tx, row.Line),
			AICategory:       res.Category,
			AIConfidence:     res.Confidence,
			AIReasoning:      res.Reasoning,
			Source:           res.Source,
			SelectedCategory: res.Category,
		})
	}

	s.logger.Info("statement previewed",
		"file", filename,
		"type", table.Type,
		"total", result.Stats.TotalRows,
		"valid", result.Stats.ValidRows,
	)
	return result, nil
}

// SaveReviewed persists reviewed previews. Lines failing Validate count as failed rows.
// A stored row whose selected category differs from the suggestion is learned as a
// correction. Rows are saved in order; on cancellation the partial summary is returned
// with the context error.
func (s *ImportService) SaveReviewed(ctx context.Context, previews []Preview) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "import.SaveReviewed")
	defer span.End()
	defer observe("save", time.Now())
	span.SetAttributes(attribute.Int("rows.total", len(previews)))

	summary := &Summary{TotalRows: len(previews), ValidRows: len(previews)}
	if _, err := s.categorizer.EnsureDefaults(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return summary, fmt.Errorf("failed to create default categories: %w", err)
	}

	cats := newCategoryCache(s.categorizer, s.logger)
	for _, p := range previews {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := p.Transaction.Validate(); err != nil {
			importRows.WithLabelValues("failed").Inc()
			summary.ValidRows--
			summary.fail(s.maxErrors, p.Transaction.Line, err)
			continue
		}
		tx := p.Transaction.Transaction()
		suggested := firstNonBlank(p.AICategory, categorization.Sentinel)
		selected := firstNonBlank(p.SelectedCategory, suggested)

		if !s.persist(ctx, cats, tx, selected, p.Transaction.Line, summary) {
			continue
		}
		if learned, err := s.corrections.Record(ctx, tx.NoteText(), tx.RawDescription, suggested, selected); err != nil {
			s.logger.Warn("failed to record correction", "line", p.Transaction.Line, "error", err)
		} else if learned {
			summary.CorrectionsLearned++
		}
	}

	s.logSummary("reviewed statement saved", summary)
	return summary, nil
}

// Import does preview and save in one pass, keeping every suggestion as is.
func (s *ImportService) Import(ctx context.Context, filename string, data []byte) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "import.Import")
	defer span.End()
	defer observe("import", time.Now())

	table, err := parser.Parse(filename, data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	s.archiveFile(ctx, filename, table.Type, data)

	if _, err := s.categorizer.EnsureDefaults(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create default categories: %w", err)
	}
	snap, err := s.categorizer.Snapshot(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load categorization rules: %w", err)
	}

	var stats normalizer.Stats
	summary := &Summary{}
	cats := newCategoryCache(s.categorizer, s.logger)
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			summary.TotalRows, summary.ValidRows = stats.TotalRows, stats.ValidRows
			return summary, err
		}
		tx, ok := s.normalizer.NormalizeRow(row.Values)
		stats.Observe(tx, ok)
		if !ok {
			importRows.WithLabelValues("rejected").Inc()
			continue
		}
		res := s.categorizer.Categorize(ctx, tx, snap)
		s.persist(ctx, cats, tx, firstNonBlank(res.Category, categorization.Sentinel), row.Line, summary)
	}
	summary.TotalRows, summary.ValidRows = stats.TotalRows, stats.ValidRows
	span.SetAttributes(
		attribute.Int("rows.inserted", summary.Inserted),
		attribute.Int("rows.updated", summary.Updated),
		attribute.Int("rows.failed", summary.Failed),
	)

	s.logSummary("statement imported", summary)
	return summary, nil
}

// persist reports whether the row was stored.
func (s *ImportService) persist(ctx context.Context, cats *categoryCache, tx *ledger.Transaction, category string, line int, summary *Summary) bool {
	id := cats.resolve(ctx, category)
	if id == nil {
		importRows.WithLabelValues("failed").Inc()
		summary.fail(s.maxErrors, line, errors.New("no category could be resolved"))
		return false
	}
	tx.CategoryID = id

	outcome, err := s.repo.Upsert(ctx, tx)
	if err != nil {
		importRows.WithLabelValues("failed").Inc()
		summary.fail(s.maxErrors, line, err)
		s.logger.Warn("failed to save row", "line", line, "error", err)
		return false
	}
	switch outcome {
	case ledger.OutcomeInserted:
		summary.Inserted++
	case ledger.OutcomeUpdated:
		summary.Updated++
	}
	importRows.WithLabelValues(outcome.String()).Inc()
	return true
}

func (s *ImportService) archiveFile(ctx context.Context, filename string, ft parser.FileType, data []byte) *uuid.UUID {
	if s.archive == nil {
		return nil
	}
	info, err := s.archive.Upload(ctx, filename, ft.ContentType(), bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("failed to archive statement", "file", filename, "error", err)
		return nil
	}
	return &info.ID
}

func (s *ImportService) logSummary(msg string, summary *Summary) {
	s.logger.Info(msg,
		"total", summary.TotalRows,
		"valid", summary.ValidRows,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"failed", summary.Failed,
	)
}

// categoryCache resolves names to ids once per batch, creating categories on first use.
// A name that cannot be created falls back to the sentinel.
type categoryCache struct {
	categorizer Categorizer
	ids         map[string]uuid.UUID
	logger      *slog.Logger
}

func newCategoryCache(c Categorizer, logger *slog.Logger) *categoryCache {
	return &categoryCache{categorizer: c, ids: make(map[string]uuid.UUID), logger: logger}
}

func (c *categoryCache) resolve(ctx context.Context, name string) *uuid.UUID {
	name = strings.TrimSpace(name)
	if id, ok := c.lookup(ctx, name); ok {
		return &id
	}
	if name != categorization.Sentinel {
		if id, ok := c.lookup(ctx, categorization.Sentinel); ok {
			return &id
		}
	}
	return nil
}

func (c *categoryCache) lookup(ctx context.Context, name string) (uuid.UUID, bool) {
	if id, ok := c.ids[name]; ok {
		return id, true
	}
	cat, err := c.categorizer.EnsureCategory(ctx, name)
	if err != nil {
		c.logger.Warn("failed to resolve category", "name", name, "error", err)
		return uuid.Nil, false
	}
	c.ids[name] = cat.ID
	return cat.ID, true
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func observe(op string, start time.Time) {
	importDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
