package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

const (
	DefaultWorkers = 5
	MaxWorkers     = 10

	alreadyExistsMarker = "já existe"
)

var ErrNotInDeletionStage = errors.New("deal not in deletion stage")

type Options struct {
	Pipeline  config.PipelineConfig
	Origins   []config.OriginMapping
	Validator Validator
	Workers   int
	DryRun    bool
	Logger    *slog.Logger
}

// Engine moves the preserved case numbers out of a pipeline's deletion
// stage, hands their origin deals back to the owning mesa, and clears what
// is left.
type Engine struct {
	svc       DealService
	pipeline  config.PipelineConfig
	origins   []config.OriginMapping
	validator Validator
	workers   int
	dryRun    bool
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(svc DealService, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pipeline", opts.Pipeline.Name)
	if opts.DryRun {
		svc = DryRun(svc, logger)
	}
	return &Engine{
		svc:       svc,
		pipeline:  opts.Pipeline,
		origins:   opts.Origins,
		validator: opts.Validator,
		workers:   clampWorkers(opts.Workers),
		dryRun:    opts.DryRun,
		logger:    logger,
		now:       time.Now,
	}
}

func clampWorkers(n int) int {
	switch {
	case n == 0:
		return DefaultWorkers
	case n < 1:
		return 1
	case n > MaxWorkers:
		return MaxWorkers
	}
	return n
}

type run struct {
	batch     internal.Batch
	preserved map[string]bool
	pending   bool
	report    *internal.SyncReport
}

func (e *Engine) Run(ctx context.Context, batch internal.Batch) internal.SyncReport {
	report := internal.SyncReport{
		RunID:     uuid.NewString(),
		Pipeline:  e.pipeline.Name,
		DryRun:    e.dryRun,
		StartedAt: e.now(),
		Total:     len(batch.CNJs),
	}
	r := &run{batch: batch, report: &report}
	logger := e.logger.With("run_id", report.RunID)
	logger.Info("sync started", "cnjs", report.Total, "dry_run", e.dryRun, "workers", e.workers)

	_ = runPhase(ctx, logger, "init", func(ctx context.Context) error {
		return e.init(ctx, r)
	})
	if r.pending {
		_ = runPhase(ctx, logger, "match", func(ctx context.Context) error {
			return e.match(ctx, r)
		})
	} else {
		logger.Info("nothing pending in deletion stage, skipping match and cleanup", "stage_id", e.pipeline.DeletionStageID)
	}
	_ = runPhase(ctx, logger, "origin_propagation", func(ctx context.Context) error {
		return e.propagateOrigins(ctx, r)
	})
	_ = runPhase(ctx, logger, "purge_confirmed", func(ctx context.Context) error {
		return e.purgeConfirmed(ctx, r)
	})
	if r.pending {
		_ = runPhase(ctx, logger, "stale_cleanup", func(ctx context.Context) error {
			return e.cleanupStale(ctx, r)
		})
	}

	report.FinishedAt = e.now()
	logger.Info("sync finished",
		"moved", report.Moved,
		"deleted", report.Deleted,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"preserved", report.Preserved,
		"purged", report.Purged,
		"origins_moved", report.OriginsMoved,
	)
	return report
}

func (e *Engine) init(ctx context.Context, r *run) error {
	r.preserved = make(map[string]bool, len(r.batch.CNJs))
	for _, cnj := range r.batch.CNJs {
		key := util.CanonicalCNJ(cnj)
		if alreadyExists(r.batch.Errors[key]) {
			e.logger.Info("case already exists on partner side, not preserving", "cnj", key)
			continue
		}
		r.preserved[key] = true
	}

	deals, err := e.svc.SearchByStage(ctx, e.pipeline.DeletionStageID)
	if err != nil {
		return fmt.Errorf("read deletion stage: %w", err)
	}
	r.pending = len(deals) > 0
	return nil
}

func (e *Engine) match(ctx context.Context, r *run) error {
	results := make([]internal.RecordResult, len(r.batch.CNJs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, cnj := range r.batch.CNJs {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					results[i] = internal.RecordResult{CNJ: util.CanonicalCNJ(cnj), Error: fmt.Sprintf("panic: %v", rec)}
					e.logger.Error("match panicked", "cnj", cnj, "recovered", rec)
				}
			}()
			results[i] = e.matchOne(gctx, cnj)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		if res.MovedOK {
			r.report.Moved++
		} else {
			r.report.Failed++
		}
	}
	r.report.Results = append(r.report.Results, results...)
	return nil
}

func (e *Engine) matchOne(ctx context.Context, cnj string) internal.RecordResult {
	key := util.CanonicalCNJ(cnj)
	res := internal.RecordResult{CNJ: key}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	deals, err := e.svc.SearchByCNJ(ctx, key)
	if err != nil {
		res.Error = fmt.Sprintf("search failed: %v", err)
		e.logger.Warn("search by cnj failed", "cnj", key, "error", err)
		return res
	}

	var staged []internal.Deal
	for _, d := range deals {
		if d.ID != 0 && d.StageID == e.pipeline.DeletionStageID {
			staged = append(staged, d)
		}
	}
	if len(staged) == 0 {
		res.Error = ErrNotInDeletionStage.Error()
		e.logger.Info("no deal in deletion stage", "cnj", key, "found", len(deals))
		return res
	}

	var failures []string
	for _, d := range staged {
		res.DealID = d.ID
		if d.StageID == e.pipeline.TargetStageID {
			res.MovedOK = true
			continue
		}
		if err := e.svc.UpdateStage(ctx, d.ID, e.pipeline.TargetStageID); err != nil {
			failures = append(failures, fmt.Sprintf("move deal %d: %v", d.ID, err))
			e.logger.Error("move to target stage failed", "cnj", key, "deal_id", d.ID, "error", err)
			continue
		}
		res.MovedOK = true
		e.logger.Info("deal moved to target stage", "cnj", key, "deal_id", d.ID)
	}
	if len(failures) > 0 {
		res.Error = strings.Join(failures, "; ")
	}
	return res
}

func (e *Engine) propagateOrigins(ctx context.Context, r *run) error {
	deals, err := e.svc.SearchByStage(ctx, e.pipeline.TargetStageID)
	if err != nil {
		return fmt.Errorf("read target stage: %w", err)
	}

	stages := map[int64]bool{}
	for _, d := range deals {
		if err := ctx.Err(); err != nil {
			return err
		}
		errText := r.batch.ErrorFor(d.CNJ())
		if alreadyExists(errText) {
			e.logger.Info("case already exists on partner side, leaving origin untouched", "deal_id", d.ID)
			continue
		}
		if stage, ok := e.propagateOrigin(ctx, r, d, errText); ok {
			stages[stage] = true
		}
	}

	for stage := range stages {
		r.report.OriginStages = append(r.report.OriginStages, stage)
	}
	slices.Sort(r.report.OriginStages)
	return nil
}

// propagateOrigin routes the deal's origin to its mesa stage and reports the
// stage when the origin ends up there.
func (e *Engine) propagateOrigin(ctx context.Context, r *run, d internal.Deal, errText string) (int64, bool) {
	if d.OriginDealID == 0 {
		return 0, false
	}
	origin, err := e.svc.GetByID(ctx, d.OriginDealID)
	if err != nil {
		e.logger.Warn("origin deal lookup failed", "deal_id", d.ID, "origin_id", d.OriginDealID, "error", err)
		return 0, false
	}
	if origin == nil {
		e.logger.Warn("origin deal not found", "deal_id", d.ID, "origin_id", d.OriginDealID)
		return 0, false
	}

	mapping, ok := e.originFor(origin.PipelineID)
	if !ok {
		e.logger.Debug("origin pipeline not mapped", "origin_id", origin.ID, "pipeline_id", origin.PipelineID)
		return 0, false
	}

	if origin.StageID == mapping.StageID {
		if errText != "" && origin.LastInteractionRecordID == 0 {
			e.addNote(ctx, r, origin.ID, errText)
		}
		return mapping.StageID, true
	}

	if errText != "" {
		e.addNote(ctx, r, origin.ID, errText)
	}
	if err := e.svc.UpdateStage(ctx, origin.ID, mapping.StageID); err != nil {
		e.logger.Error("origin move failed", "origin_id", origin.ID, "stage_id", mapping.StageID, "error", err)
		return 0, false
	}
	r.report.OriginsMoved++
	e.logger.Info("origin deal moved", "origin_id", origin.ID, "stage_id", mapping.StageID, "mesa", mapping.Mesa)
	return mapping.StageID, true
}

func (e *Engine) addNote(ctx context.Context, r *run, dealID int64, content string) {
	noteID, err := e.svc.CreateNote(ctx, dealID, content)
	if err != nil {
		e.logger.Warn("note creation failed", "deal_id", dealID, "error", err)
		return
	}
	r.report.NotesCreated++
	if err := e.svc.SetLastNote(ctx, dealID, noteID); err != nil {
		e.logger.Warn("last note update failed", "deal_id", dealID, "note_id", noteID, "error", err)
	}
}

func (e *Engine) originFor(pipelineID int64) (config.OriginMapping, bool) {
	for _, m := range e.origins {
		if m.PipelineID == pipelineID {
			return m, true
		}
	}
	return config.OriginMapping{}, false
}

func (e *Engine) purgeConfirmed(ctx context.Context, r *run) error {
	deals, err := e.svc.SearchByStage(ctx, e.pipeline.TargetStageID)
	if err != nil {
		return fmt.Errorf("read target stage: %w", err)
	}
	for _, d := range deals {
		if d.ID == 0 {
			continue
		}
		if err := e.svc.Delete(ctx, d.ID); err != nil {
			r.report.PurgeFailed++
			e.logger.Error("purge failed", "deal_id", d.ID, "error", err)
			continue
		}
		r.report.Purged++
	}
	return nil
}

func (e *Engine) cleanupStale(ctx context.Context, r *run) error {
	deals, err := e.svc.SearchByStage(ctx, e.pipeline.DeletionStageID)
	if err != nil {
		return fmt.Errorf("re-read deletion stage: %w", err)
	}

	for _, d := range deals {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.ID == 0 {
			r.report.Skipped++
			e.logger.Warn("deal without id in deletion stage")
			continue
		}
		cnj := d.CNJ()
		key := util.CanonicalCNJ(cnj)
		if key != "" && r.preserved[key] {
			r.report.Preserved++
			r.report.Skipped++
			e.logger.Info("deal preserved", "cnj", key, "deal_id", d.ID)
			continue
		}
		// The partner API is queried with the value stored on the deal.
		if !e.confirmStale(ctx, d.ID, cnj) {
			r.report.Skipped++
			continue
		}

		res := internal.RecordResult{CNJ: key, DealID: d.ID}
		if err := e.svc.Delete(ctx, d.ID); err != nil {
			res.Error = fmt.Sprintf("delete failed: %v", err)
			r.report.Failed++
			e.logger.Error("delete failed", "cnj", key, "deal_id", d.ID, "error", err)
		} else {
			res.DeletedOK = true
			r.report.Deleted++
			e.logger.Info("stale deal deleted", "cnj", key, "deal_id", d.ID)
		}
		r.report.Results = append(r.report.Results, res)
	}
	return nil
}

// confirmStale asks the validator whether a deal may go. Any doubt keeps it.
func (e *Engine) confirmStale(ctx context.Context, dealID int64, cnj string) bool {
	if e.validator == nil {
		return true
	}
	if cnj == "" {
		e.logger.Warn("deal without case number, keeping", "deal_id", dealID)
		return false
	}
	exists, err := e.validator.LeadExists(ctx, cnj)
	if err != nil {
		e.logger.Warn("partner validation failed, keeping deal", "cnj", cnj, "deal_id", dealID, "error", err)
		return false
	}
	if !exists {
		e.logger.Warn("case not found on partner side, keeping deal", "cnj", cnj, "deal_id", dealID)
		return false
	}
	return true
}

func alreadyExists(errText string) bool {
	return errText != "" && strings.Contains(strings.ToLower(errText), alreadyExistsMarker)
}
