package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

type InteractionService interface {
	DealService
	InteractionReader
}

// StageCutoffReader narrows a stage read to deals created before a cutoff.
type StageCutoffReader interface {
	SearchByStageCreatedBefore(ctx context.Context, stageID int64, cutoff time.Time) ([]internal.Deal, error)
}

// InteractionValidator makes sure every deal in a stage carries its
// operator error text as the last interaction record.
type InteractionValidator struct {
	// CreatedBefore limits validation to older deals when the service
	// supports it. Zero means every deal in the stage.
	CreatedBefore time.Time

	svc    InteractionService
	reader InteractionService
	errors internal.Batch
	logger *slog.Logger
}

func NewInteractionValidator(svc InteractionService, batch internal.Batch, dryRun bool, logger *slog.Logger) *InteractionValidator {
	if logger == nil {
		logger = slog.Default()
	}
	reader := svc
	if dryRun {
		svc = DryRun(svc, logger)
	}
	return &InteractionValidator{svc: svc, reader: reader, errors: batch, logger: logger.With("component", "interactions")}
}

func (v *InteractionValidator) ValidateStage(ctx context.Context, stageID int64) (internal.InteractionReport, error) {
	var report internal.InteractionReport

	deals, err := v.stageDeals(ctx, stageID)
	if err != nil {
		return report, fmt.Errorf("read stage %d: %w", stageID, err)
	}
	report.Total = len(deals)
	v.logger.Info("validating interactions", "stage_id", stageID, "deals", len(deals))

	for _, d := range deals {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := v.validateDeal(ctx, d)
		report.Results = append(report.Results, res)

		switch {
		case res.Error != "":
			report.Errors++
		case res.HadCorrect:
			report.Correct++
		case res.HadWrong:
			report.Wrong++
		default:
			report.Without++
		}
		if res.Created {
			report.Created++
		}
		if res.LastUpdated {
			report.LastUpdated++
		}
	}
	return report, nil
}

func (v *InteractionValidator) stageDeals(ctx context.Context, stageID int64) ([]internal.Deal, error) {
	if !v.CreatedBefore.IsZero() {
		if r, ok := v.reader.(StageCutoffReader); ok {
			return r.SearchByStageCreatedBefore(ctx, stageID, v.CreatedBefore)
		}
		v.logger.Warn("creation cutoff not supported, reading whole stage")
	}
	return v.svc.SearchByStage(ctx, stageID)
}

func (v *InteractionValidator) validateDeal(ctx context.Context, d internal.Deal) internal.InteractionResult {
	res := internal.InteractionResult{DealID: d.ID, CNJ: d.CNJ()}
	if d.ID == 0 {
		res.Error = "deal without id"
		return res
	}
	want := strings.TrimSpace(v.errors.ErrorFor(res.CNJ))
	if want == "" {
		return res
	}

	correct, wrong := v.inspect(ctx, d.ID, want)
	if correct {
		res.HadCorrect = true
		return res
	}
	res.HadWrong = wrong

	noteID, err := v.svc.CreateNote(ctx, d.ID, want)
	if err != nil {
		res.Error = fmt.Sprintf("create note: %v", err)
		v.logger.Error("note creation failed", "deal_id", d.ID, "error", err)
		return res
	}
	res.Created = true
	if err := v.svc.SetLastNote(ctx, d.ID, noteID); err != nil {
		res.Error = fmt.Sprintf("set last note: %v", err)
		v.logger.Error("last note update failed", "deal_id", d.ID, "note_id", noteID, "error", err)
		return res
	}
	res.LastUpdated = true
	v.logger.Info("interaction recorded", "deal_id", d.ID, "cnj", res.CNJ, "note_id", noteID)
	return res
}

// inspect compares the deal's current last interaction with want. Lookup
// failures count as "no interaction".
func (v *InteractionValidator) inspect(ctx context.Context, dealID int64, want string) (correct, wrong bool) {
	deal, err := v.svc.GetByID(ctx, dealID)
	if err != nil || deal == nil || deal.LastInteractionRecordID == 0 {
		if err != nil {
			v.logger.Warn("deal lookup failed", "deal_id", dealID, "error", err)
		}
		return false, false
	}
	rec, err := v.svc.GetInteractionRecord(ctx, deal.LastInteractionRecordID)
	if err != nil || rec == nil {
		if err != nil {
			v.logger.Warn("interaction lookup failed", "deal_id", dealID, "record_id", deal.LastInteractionRecordID, "error", err)
		}
		return false, false
	}
	if strings.TrimSpace(rec.Content) == want {
		return true, false
	}
	return false, true
}
