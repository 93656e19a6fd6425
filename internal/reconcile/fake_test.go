package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

type fakeCRM struct {
	mu       sync.Mutex
	deals    map[int64]*internal.Deal
	records  map[int64]*internal.InteractionRecord
	nextNote int64
	calls    []string

	stageErr   map[int64]error
	failUpdate map[int64]bool
	failDelete map[int64]bool
	panicOnGet bool
}

func newFakeCRM(deals ...*internal.Deal) *fakeCRM {
	f := &fakeCRM{
		deals:      map[int64]*internal.Deal{},
		records:    map[int64]*internal.InteractionRecord{},
		nextNote:   1000,
		stageErr:   map[int64]error{},
		failUpdate: map[int64]bool{},
		failDelete: map[int64]bool{},
	}
	for _, d := range deals {
		f.deals[d.ID] = d
	}
	return f
}

func mkDeal(id, stage int64, cnj string) *internal.Deal {
	d := &internal.Deal{ID: id, StageID: stage}
	if cnj != "" {
		d.OtherProperties = []internal.OtherProperty{{FieldKey: util.CNJFieldKey, StringValue: cnj}}
	}
	return d
}

func (f *fakeCRM) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// mutations returns the recorded writes, skipping reads.
func (f *fakeCRM) mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, "search") || strings.HasPrefix(c, "get") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *fakeCRM) sorted(match func(*internal.Deal) bool) []internal.Deal {
	var out []internal.Deal
	for _, d := range f.deals {
		if match(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeCRM) SearchByCNJ(_ context.Context, cnj string) ([]internal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("search_cnj:%s", cnj)
	key := util.CanonicalCNJ(cnj)
	return f.sorted(func(d *internal.Deal) bool { return util.CanonicalCNJ(d.CNJ()) == key }), nil
}

func (f *fakeCRM) SearchByStage(_ context.Context, stageID int64) ([]internal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("search_stage:%d", stageID)
	if err := f.stageErr[stageID]; err != nil {
		return nil, err
	}
	return f.sorted(func(d *internal.Deal) bool { return d.StageID == stageID }), nil
}

func (f *fakeCRM) SearchByStageCreatedBefore(_ context.Context, stageID int64, cutoff time.Time) ([]internal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("search_stage_before:%d", stageID)
	return f.sorted(func(d *internal.Deal) bool {
		return d.StageID == stageID && (d.CreateDate.IsZero() || d.CreateDate.Before(cutoff))
	}), nil
}

func (f *fakeCRM) SearchByPipeline(_ context.Context, pipelineID int64) ([]internal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("search_pipeline:%d", pipelineID)
	return f.sorted(func(d *internal.Deal) bool { return d.PipelineID == pipelineID }), nil
}

func (f *fakeCRM) GetByID(_ context.Context, id int64) (*internal.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get:%d", id)
	if f.panicOnGet {
		panic("boom")
	}
	d, ok := f.deals[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeCRM) UpdateStage(_ context.Context, id, stageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update:%d:%d", id, stageID)
	if f.failUpdate[id] {
		return errors.New("update rejected")
	}
	if d, ok := f.deals[id]; ok {
		d.StageID = stageID
	}
	return nil
}

func (f *fakeCRM) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete:%d", id)
	if f.failDelete[id] {
		return errors.New("delete rejected")
	}
	delete(f.deals, id)
	return nil
}

func (f *fakeCRM) CreateNote(_ context.Context, dealID int64, content string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextNote++
	f.record("note:%d:%s", dealID, content)
	f.records[f.nextNote] = &internal.InteractionRecord{ID: f.nextNote, DealID: dealID, Content: content}
	return f.nextNote, nil
}

func (f *fakeCRM) SetLastNote(_ context.Context, dealID, noteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("last_note:%d:%d", dealID, noteID)
	if d, ok := f.deals[dealID]; ok {
		d.LastInteractionRecordID = noteID
	}
	return nil
}

func (f *fakeCRM) GetInteractionRecord(_ context.Context, id int64) (*internal.InteractionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_record:%d", id)
	return f.records[id], nil
}

type fakeValidator struct {
	mu     sync.Mutex
	exists map[string]bool
	err    error
	asked  []string
}

func (v *fakeValidator) LeadExists(_ context.Context, cnj string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.asked = append(v.asked, cnj)
	if v.err != nil {
		return false, v.err
	}
	return v.exists[cnj], nil
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
