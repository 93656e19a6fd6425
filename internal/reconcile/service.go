package reconcile

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

// DealService is the CRM surface the engine drives. GetByID returns nil, nil
// for a deal that does not exist.
type DealService interface {
	SearchByCNJ(ctx context.Context, cnj string) ([]internal.Deal, error)
	SearchByStage(ctx context.Context, stageID int64) ([]internal.Deal, error)
	GetByID(ctx context.Context, id int64) (*internal.Deal, error)
	UpdateStage(ctx context.Context, id, stageID int64) error
	Delete(ctx context.Context, id int64) error
	CreateNote(ctx context.Context, dealID int64, content string) (int64, error)
	SetLastNote(ctx context.Context, dealID, noteID int64) error
}

type InteractionReader interface {
	GetInteractionRecord(ctx context.Context, id int64) (*internal.InteractionRecord, error)
}

type PipelineReader interface {
	SearchByPipeline(ctx context.Context, pipelineID int64) ([]internal.Deal, error)
}

// Validator confirms a case number still exists on the partner side before
// its staged deal is deleted.
type Validator interface {
	LeadExists(ctx context.Context, cnj string) (bool, error)
}

// DryRunService forwards reads and turns every mutation into a log line.
type DryRunService struct {
	DealService
	logger *slog.Logger
	noteID atomic.Int64
}

func DryRun(svc DealService, logger *slog.Logger) *DryRunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunService{DealService: svc, logger: logger}
}

func (d *DryRunService) UpdateStage(_ context.Context, id, stageID int64) error {
	d.logger.Info("[DRY RUN] would move deal", "deal_id", id, "stage_id", stageID)
	return nil
}

func (d *DryRunService) Delete(_ context.Context, id int64) error {
	d.logger.Info("[DRY RUN] would delete deal", "deal_id", id)
	return nil
}

// CreateNote returns decreasing negative ids so they never collide with
// real records.
func (d *DryRunService) CreateNote(_ context.Context, dealID int64, content string) (int64, error) {
	id := -d.noteID.Add(1)
	d.logger.Info("[DRY RUN] would create note", "deal_id", dealID, "note_id", id, "content", content)
	return id, nil
}

func (d *DryRunService) SetLastNote(_ context.Context, dealID, noteID int64) error {
	d.logger.Info("[DRY RUN] would set last note", "deal_id", dealID, "note_id", noteID)
	return nil
}

func (d *DryRunService) GetInteractionRecord(ctx context.Context, id int64) (*internal.InteractionRecord, error) {
	if r, ok := d.DealService.(InteractionReader); ok && id > 0 {
		return r.GetInteractionRecord(ctx, id)
	}
	return nil, nil
}

func (d *DryRunService) SearchByPipeline(ctx context.Context, pipelineID int64) ([]internal.Deal, error) {
	if r, ok := d.DealService.(PipelineReader); ok {
		return r.SearchByPipeline(ctx, pipelineID)
	}
	return nil, nil
}
