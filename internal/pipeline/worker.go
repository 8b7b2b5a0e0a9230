package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/importer"
)

// Importer persists a parse result.
type Importer interface {
	Import(ctx context.Context, res *doctree.ParseResult, ownerID string) (*importer.Result, error)
}

// Worker processes a single import job.
type Worker struct {
	parser        *Parser
	importer      Importer
	stats         *ImportStats
	log           *slog.Logger
	minConfidence float64
	backoff       func(attempt int) time.Duration
}

func NewWorker(p *Parser, imp Importer, stats *ImportStats, log *slog.Logger, minConfidence float64) *Worker {
	return &Worker{
		parser:        p,
		importer:      imp,
		stats:         stats,
		log:           log,
		minConfidence: minConfidence,
		backoff:       Backoff,
	}
}

// Process extracts, parses and imports the job's file. Working assets are
// removed when the job ends, whatever the outcome.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "owner_id", job.OwnerID, "filename", job.Filename)

	ctx, ok := job.begin(ctx)
	if !ok {
		log.Info("job cancelled before start")
		w.record(OutcomeCancelled, time.Now())
		return
	}
	defer job.finish()
	start := time.Now()

	// Phase 1: Extract and parse
	res, written, err := w.parser.Parse(ctx, job.Filename, job.FileData())
	if err != nil {
		log.Error("extraction failed", "error", err)
		w.fail(job, "extracting", err, start)
		return
	}
	defer w.parser.Work.Remove(written...)
	job.SetResult(res.Confidence, res.Warnings)

	if len(res.Tours) == 0 {
		w.fail(job, "parsing", fmt.Errorf("%w: no tours found", doctree.ErrExtraction), start)
		return
	}
	if res.Confidence < w.minConfidence {
		log.Warn("confidence below minimum", "confidence", res.Confidence, "min", w.minConfidence)
		w.fail(job, "parsing", fmt.Errorf("confidence %.2f is below the minimum %.2f", res.Confidence, w.minConfidence), start)
		return
	}

	// Phase 2: Import, retrying transient database failures.
	for attempt := 0; ; attempt++ {
		n, ok := job.startAttempt()
		if !ok {
			log.Info("job cancelled")
			w.record(OutcomeCancelled, start)
			return
		}
		out, err := w.importer.Import(ctx, res, job.OwnerID)
		if err == nil {
			elapsed := w.record(OutcomeSucceeded, start)
			job.Succeed(out.Package.ID, out.Warnings)
			log.Info("job complete",
				"package_id", out.Package.ID,
				"attempts", n,
				"warnings", len(out.Warnings),
				"duration_ms", elapsed.Milliseconds(),
			)
			return
		}

		err = classify(err)
		if !IsRetryable(err) || n >= job.MaxAttempts {
			log.Error("import failed", "attempt", n, "error", err)
			w.fail(job, "importing", err, start)
			return
		}
		delay := w.backoff(attempt)
		log.Warn("retryable import error", "attempt", n, "retry_in", delay, "error", err)
		job.scheduleRetry(err, time.Now().Add(delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			w.fail(job, "importing", fmt.Errorf("import cancelled: %w", ctx.Err()), start)
			return
		}
	}
}

// fail records the outcome and marks the job failed unless it was
// cancelled.
func (w *Worker) fail(job *Job, phase string, err error, start time.Time) {
	if job.Cancelled() {
		w.record(OutcomeCancelled, start)
		return
	}
	w.record(OutcomeFailed, start)
	job.Fail(phase, err)
}

func (w *Worker) record(o Outcome, start time.Time) time.Duration {
	elapsed := time.Since(start)
	if w.stats != nil {
		w.stats.Record(o, elapsed)
	}
	return elapsed
}
