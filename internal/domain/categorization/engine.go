package categorization

import (
	"context"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

const (
	reasonChart = "ระบุจากไฟล์ต้นฉบับ"
	reasonRule  = "ตรงกับกฎที่กำหนด"
)

// Engine runs the categorization cascade. It holds the compiled built-in table and the
// classifier queue; per-batch state comes in through a Snapshot.
type Engine struct {
	builtin      []BuiltinRule
	builtinTable *ruleTable
	queue        *Queue
	logger       *slog.Logger
}

// NewEngine creates an engine with the default built-in rules. A nil queue disables the
// classifier step.
func NewEngine(queue *Queue, logger *slog.Logger) *Engine {
	return NewEngineWithRules(DefaultBuiltinRules(), queue, logger)
}

// NewEngineWithRules creates an engine with a custom built-in table.
func NewEngineWithRules(builtin []BuiltinRule, queue *Queue, logger *slog.Logger) *Engine {
	sorted, table := compileBuiltin(builtin)
	return &Engine{
		builtin:      sorted,
		builtinTable: table,
		queue:        queue,
		logger:       logger,
	}
}

// ClassifierEnabled reports whether the cascade can reach the classifier.
func (e *Engine) ClassifierEnabled() bool {
	return e.queue != nil
}

// Categorize runs the full cascade for tx. It never fails: anything unclassifiable,
// including an internal fault, comes back as the sentinel with low confidence.
func (e *Engine) Categorize(ctx context.Context, tx *ledger.Transaction, snap *Snapshot) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("categorization panicked", "panic", r, "id", tx.ID)
			res = sentinelResult(SourceNone)
		}
	}()

	if r, ok := e.CategorizeByRules(tx, snap); ok {
		return r
	}
	if !tx.IsWithdrawal() {
		return sentinelResult(SourceNone)
	}
	return e.Classify(ctx, tx, snap)
}

// CategorizeByRules runs every step except the classifier.
func (e *Engine) CategorizeByRules(tx *ledger.Transaction, snap *Snapshot) (Result, bool) {
	if chart := tx.ChartText(); chart != "" {
		return Result{Category: chart, Confidence: ConfidenceHigh, Source: SourceChart, Reasoning: reasonChart}, true
	}

	if tx.IsDeposit() {
		return categorizeDeposit(tx)
	}
	if !tx.IsWithdrawal() {
		return Result{}, false
	}

	note := tx.NoteText()
	builtinTexts := fieldTexts{
		note:        note,
		description: strings.TrimSpace(tx.CombinedDescription() + " " + note),
	}
	if hit, ok := e.builtinTable.first(builtinTexts); ok {
		return Result{
			Category:   e.builtin[hit.rule].Category,
			Confidence: ConfidenceHigh,
			Source:     SourceBuiltin,
			Reasoning:  reasonRule,
		}, true
	}

	if rule, ok := snap.match(fieldTexts{note: note, description: tx.CombinedDescription()}); ok {
		return Result{
			Category:   rule.CategoryName,
			Confidence: ConfidenceHigh,
			Source:     SourceRule,
			Reasoning:  reasonRule,
		}, true
	}
	return Result{}, false
}

// Classify asks the classifier directly. Failures and unknown answers are the sentinel.
func (e *Engine) Classify(ctx context.Context, tx *ledger.Transaction, snap *Snapshot) Result {
	if e.queue == nil {
		return sentinelResult(SourceNone)
	}

	s, err := e.queue.Classify(ctx, classifierRequest(tx, snap))
	if err != nil {
		e.logger.Warn("classifier failed, using sentinel", "id", tx.ID, "error", err)
		return sentinelResult(SourceClassifier)
	}
	return resolveSuggestion(s, snap.AllowList())
}

// ClassifyBatch classifies txs concurrently, bounded by the queue. Results line up with
// txs; a failed call yields the sentinel. Only cancellation is returned as an error.
func (e *Engine) ClassifyBatch(ctx context.Context, txs []ledger.Transaction, snap *Snapshot) ([]Result, error) {
	out := make([]Result, len(txs))
	if e.queue == nil {
		for i := range out {
			out[i] = sentinelResult(SourceNone)
		}
		return out, nil
	}

	reqs := make([]Request, len(txs))
	for i := range txs {
		reqs[i] = classifierRequest(&txs[i], snap)
	}

	suggestions, err := e.queue.ClassifyAll(ctx, reqs)
	for i, sug := range suggestions {
		if sug == nil {
			out[i] = sentinelResult(SourceClassifier)
			continue
		}
		out[i] = resolveSuggestion(sug, snap.AllowList())
	}
	return out, err
}

func classifierRequest(tx *ledger.Transaction, snap *Snapshot) Request {
	req := Request{
		Note:        tx.NoteText(),
		Description: tx.CombinedDescription(),
		Withdrawal:  tx.Withdrawal,
		Deposit:     tx.Deposit,
	}
	if snap != nil {
		req.Categories = snap.allowList
		req.Examples = snap.examples
		req.Corrections = snap.corrections
	}
	return req
}

func sentinelResult(src Source) Result {
	return Result{Category: Sentinel, Confidence: ConfidenceLow, Source: src}
}
