package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
)

const (
	stageDeletion int64 = 1
	stageTarget   int64 = 2

	cnjA = "0000001-02.2024.5.02.0001"
	cnjB = "0000002-02.2024.5.02.0001"
	cnjC = "0000003-02.2024.5.02.0001"

	originPipeline int64 = 110065217
	originStage    int64 = 110352811
)

var testPipeline = config.PipelineConfig{Name: "Pipeline de Teste", TargetStageID: stageTarget, DeletionStageID: stageDeletion, Mesa: "test"}

func newTestEngine(crm *fakeCRM, mutate func(*Options)) *Engine {
	opts := Options{Pipeline: testPipeline, Origins: config.OriginMappings(), Workers: 3}
	if mutate != nil {
		mutate(&opts)
	}
	return NewEngine(crm, opts)
}

func batchOf(errs map[string]string, cnjs ...string) internal.Batch {
	if errs == nil {
		errs = map[string]string{}
	}
	return internal.Batch{CNJs: cnjs, Errors: errs}
}

func TestPreservedMovesAndStaleDeletes(t *testing.T) {
	crm := newFakeCRM(
		mkDeal(10, stageDeletion, cnjA),
		mkDeal(11, stageDeletion, cnjB),
		mkDeal(12, stageDeletion, cnjC),
	)
	crm.failUpdate[12] = true

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil, "00000010220245020001", cnjC))

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 1, report.Purged)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Preserved)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	assert.Contains(t, crm.mutations(), "update:10:2")
	assert.Contains(t, crm.mutations(), "delete:10")
	assert.Contains(t, crm.mutations(), "delete:11")
	assert.NotContains(t, crm.mutations(), "delete:12")

	require.Len(t, report.Results, 3)
	assert.Equal(t, internal.RecordResult{CNJ: cnjA, DealID: 10, MovedOK: true}, report.Results[0])
	assert.Equal(t, cnjC, report.Results[1].CNJ)
	assert.Contains(t, report.Results[1].Error, "update rejected")
	assert.Equal(t, internal.RecordResult{CNJ: cnjB, DealID: 11, DeletedOK: true}, report.Results[2])
}

func TestEmptyDeletionStageMakesNoMutations(t *testing.T) {
	crm := newFakeCRM()
	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil, cnjA, cnjB))

	assert.Empty(t, crm.mutations())
	assert.Empty(t, report.Results)
	assert.Equal(t, 2, report.Total)
	assert.Zero(t, report.Moved+report.Failed+report.Deleted)
	assert.Equal(t, []string{"search_stage:1", "search_stage:2", "search_stage:2"}, crm.calls)
}

func TestDeletionStageReadErrorSkipsMatchAndCleanup(t *testing.T) {
	crm := newFakeCRM(mkDeal(11, stageDeletion, cnjB))
	crm.stageErr[stageDeletion] = errors.New("timeout")

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil, cnjA))
	assert.Empty(t, crm.mutations())
	assert.Zero(t, report.Deleted)
}

func TestCNJNotInDeletionStageIsSoftFailure(t *testing.T) {
	crm := newFakeCRM(mkDeal(10, 99, cnjA), mkDeal(11, stageDeletion, cnjB))
	crm.failDelete[11] = true

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil, cnjA))
	require.NotEmpty(t, report.Results)
	assert.Equal(t, ErrNotInDeletionStage.Error(), report.Results[0].Error)
	assert.Equal(t, 2, report.Failed)
	assert.Contains(t, report.Results[1].Error, "delete rejected")
}

func TestOriginAlreadyInStageWithoutErrorText(t *testing.T) {
	origin := mkDeal(30, originStage, "")
	origin.PipelineID = originPipeline
	confirmed := mkDeal(20, stageTarget, cnjA)
	confirmed.OriginDealID = 30
	crm := newFakeCRM(origin, confirmed)

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil, cnjA))

	assert.Equal(t, []string{"delete:20"}, crm.mutations())
	assert.Equal(t, []int64{originStage}, report.OriginStages)
	assert.Zero(t, report.OriginsMoved)
	assert.Zero(t, report.NotesCreated)
}

func TestOriginAlreadyInStageGetsMissingNote(t *testing.T) {
	origin := mkDeal(30, originStage, "")
	origin.PipelineID = originPipeline
	confirmed := mkDeal(20, stageTarget, cnjA)
	confirmed.OriginDealID = 30
	crm := newFakeCRM(origin, confirmed)

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(map[string]string{cnjA: "Telefone inválido"}, cnjA))

	assert.Equal(t, []string{"note:30:Telefone inválido", "last_note:30:1001", "delete:20"}, crm.mutations())
	assert.Equal(t, 1, report.NotesCreated)
	assert.Zero(t, report.OriginsMoved)
}

func TestOriginMovedAfterNote(t *testing.T) {
	origin := mkDeal(30, 555, "")
	origin.PipelineID = originPipeline
	confirmed := mkDeal(20, stageTarget, cnjA)
	confirmed.OriginDealID = 30
	unmapped := mkDeal(40, 7, "")
	unmapped.PipelineID = 42
	other := mkDeal(21, stageTarget, cnjB)
	other.OriginDealID = 40
	crm := newFakeCRM(origin, confirmed, unmapped, other)

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(map[string]string{cnjA: "E-mail ausente"}, cnjA))

	assert.Equal(t, []string{
		"note:30:E-mail ausente",
		"last_note:30:1001",
		"update:30:110352811",
		"delete:20",
		"delete:21",
	}, crm.mutations())
	assert.Equal(t, 1, report.OriginsMoved)
	assert.Equal(t, 1, report.NotesCreated)
	assert.Equal(t, 2, report.Purged)
	assert.Equal(t, []int64{originStage}, report.OriginStages)
}

func TestAlreadyExistsIsNotPreservedNorPropagated(t *testing.T) {
	origin := mkDeal(30, 555, "")
	origin.PipelineID = originPipeline
	confirmed := mkDeal(20, stageTarget, cnjB)
	confirmed.OriginDealID = 30
	staged := mkDeal(10, stageDeletion, cnjA)
	crm := newFakeCRM(origin, confirmed, staged)
	crm.failUpdate[10] = true

	errs := map[string]string{cnjA: "Lead JÁ EXISTE na base", cnjB: "Negócio já existe"}
	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(errs, cnjA))

	assert.NotContains(t, crm.mutations(), "update:30:110352811")
	assert.Contains(t, crm.mutations(), "delete:10")
	assert.Zero(t, report.Preserved)
	assert.Equal(t, 1, report.Deleted)
}

func TestValidatorGuardsDeletion(t *testing.T) {
	crm := newFakeCRM(
		mkDeal(11, stageDeletion, cnjA),
		mkDeal(12, stageDeletion, cnjB),
		mkDeal(13, stageDeletion, ""),
	)
	v := &fakeValidator{exists: map[string]bool{cnjA: true}}

	report := newTestEngine(crm, func(o *Options) { o.Validator = v }).Run(context.Background(), batchOf(nil))

	assert.Equal(t, []string{"delete:11"}, crm.mutations())
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 2, report.Skipped)
	assert.ElementsMatch(t, []string{cnjA, cnjB}, v.asked)
}

func TestValidatorAskedWithDealFieldValue(t *testing.T) {
	const digits = "00000010220245020001"
	crm := newFakeCRM(mkDeal(11, stageDeletion, digits))
	v := &fakeValidator{exists: map[string]bool{digits: true}}

	report := newTestEngine(crm, func(o *Options) { o.Validator = v }).Run(context.Background(), batchOf(nil))

	assert.Equal(t, []string{digits}, v.asked)
	assert.Equal(t, []string{"delete:11"}, crm.mutations())
	assert.Equal(t, 1, report.Deleted)
	require.Len(t, report.Results, 1)
	assert.Equal(t, cnjA, report.Results[0].CNJ)
}

func TestMalformedCNJPreservedByRawValue(t *testing.T) {
	const kept, stale = "11111111111111111", "22222222222222222"
	crm := newFakeCRM(
		mkDeal(11, stageDeletion, kept),
		mkDeal(12, stageDeletion, stale),
	)
	crm.failUpdate[11] = true

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil, " "+kept+" "))

	assert.Equal(t, []string{"update:11:2", "delete:12"}, crm.mutations())
	assert.Equal(t, 1, report.Preserved)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 2)
	assert.Equal(t, kept, report.Results[0].CNJ)
	assert.Equal(t, internal.RecordResult{CNJ: stale, DealID: 12, DeletedOK: true}, report.Results[1])
}

func TestValidatorErrorNeverDeletes(t *testing.T) {
	crm := newFakeCRM(mkDeal(11, stageDeletion, cnjA))
	v := &fakeValidator{err: errors.New("partner down")}

	report := newTestEngine(crm, func(o *Options) { o.Validator = v }).Run(context.Background(), batchOf(nil))
	assert.Empty(t, crm.mutations())
	assert.Equal(t, 1, report.Skipped)
}

func TestDryRunMakesNoMutations(t *testing.T) {
	origin := mkDeal(30, 555, "")
	origin.PipelineID = originPipeline
	confirmed := mkDeal(20, stageTarget, cnjB)
	confirmed.OriginDealID = 30
	crm := newFakeCRM(mkDeal(10, stageDeletion, cnjA), mkDeal(11, stageDeletion, cnjC), origin, confirmed)

	report := newTestEngine(crm, func(o *Options) { o.DryRun = true }).Run(context.Background(), batchOf(map[string]string{cnjB: "erro"}, cnjA))

	assert.Empty(t, crm.mutations())
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Moved)
	assert.Equal(t, 1, report.OriginsMoved)
	assert.Equal(t, 1, report.Purged)
	assert.Equal(t, 1, report.Deleted)
}

func TestPanicInPhaseDoesNotStopLaterPhases(t *testing.T) {
	confirmed := mkDeal(20, stageTarget, cnjA)
	confirmed.OriginDealID = 30
	crm := newFakeCRM(confirmed)
	crm.panicOnGet = true

	report := newTestEngine(crm, nil).Run(context.Background(), batchOf(nil))
	assert.Equal(t, 1, report.Purged)
}

func TestCancelledContextFailsRecords(t *testing.T) {
	crm := newFakeCRM(mkDeal(10, stageDeletion, cnjA))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newTestEngine(crm, nil).Run(ctx, batchOf(nil, cnjA, cnjB))
	assert.Equal(t, 2, report.Failed)
	assert.Empty(t, crm.mutations())
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, DefaultWorkers, clampWorkers(0))
	assert.Equal(t, 1, clampWorkers(-3))
	assert.Equal(t, MaxWorkers, clampWorkers(50))
	assert.Equal(t, 4, clampWorkers(4))
}

func TestDryRunNoteIDsAreNegative(t *testing.T) {
	d := DryRun(newFakeCRM(), nil)
	a, err := d.CreateNote(context.Background(), 1, "x")
	require.NoError(t, err)
	b, _ := d.CreateNote(context.Background(), 1, "y")
	assert.Equal(t, int64(-1), a)
	assert.Equal(t, int64(-2), b)
}
