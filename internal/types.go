package internal

import (
	"strings"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

type OtherProperty struct {
	FieldKey    string `json:"FieldKey"`
	StringValue string `json:"StringValue"`
}

// Deal is the subset of a Ploomes deal the sync works with. Zero ids mean
// "absent".
type Deal struct {
	ID                      int64
	Title                   string
	StageID                 int64
	PipelineID              int64
	OriginDealID            int64
	LastInteractionRecordID int64
	CreatorID               int64
	StatusID                int64
	CreateDate              time.Time
	OtherProperties         []OtherProperty
}

// CNJ returns the case number stored in the deal's custom field, falling back
// to a case number found in the title.
func (d Deal) CNJ() string {
	for _, p := range d.OtherProperties {
		if p.FieldKey == util.CNJFieldKey {
			if v := strings.TrimSpace(p.StringValue); v != "" {
				return v
			}
		}
	}
	return util.FindCNJ(d.Title)
}

// FieldCNJ returns only the custom-field case number, without the title
// fallback.
func (d Deal) FieldCNJ() string {
	for _, p := range d.OtherProperties {
		if p.FieldKey == util.CNJFieldKey {
			return strings.TrimSpace(p.StringValue)
		}
	}
	return ""
}

type InteractionRecord struct {
	ID      int64
	DealID  int64
	Content string
}

// Lead is one pendência returned by the Parceiros API.
type Lead struct {
	CNJ                   string
	EscritorioResponsavel string
	Negociador            string
	Raw                   map[string]any
}

// Batch is the preserve list read from a spreadsheet: case numbers to keep
// and the operator error text keyed by canonical case number.
type Batch struct {
	CNJs   []string
	Errors map[string]string
}

// ErrorFor returns the error text recorded for a case number, if any.
func (b Batch) ErrorFor(cnj string) string {
	return b.Errors[util.CanonicalCNJ(cnj)]
}

type RecordResult struct {
	CNJ       string `json:"cnj"`
	DealID    int64  `json:"dealId"`
	MovedOK   bool   `json:"movedOk"`
	DeletedOK bool   `json:"deletedOk"`
	Error     string `json:"error,omitempty"`
}

type SyncReport struct {
	RunID        string         `json:"runId"`
	Pipeline     string         `json:"pipeline"`
	DryRun       bool           `json:"dryRun"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	Total        int            `json:"totalProcessed"`
	Moved        int            `json:"moved"`
	Deleted      int            `json:"deleted"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Preserved    int            `json:"preserved"`
	Purged       int            `json:"purged"`
	PurgeFailed  int            `json:"purgeFailed"`
	OriginsMoved int            `json:"originsMoved"`
	NotesCreated int            `json:"notesCreated"`
	OriginStages []int64        `json:"originStages"`
	Results      []RecordResult `json:"results"`
}

// Counts flattens the report counters for persistence and the summary sheet.
func (r SyncReport) Counts() map[string]int {
	return map[string]int{
		"total_processed": r.Total,
		"moved":           r.Moved,
		"deleted":         r.Deleted,
		"failed":          r.Failed,
		"skipped":         r.Skipped,
		"preserved":       r.Preserved,
		"purged":          r.Purged,
		"purge_failed":    r.PurgeFailed,
		"origins_moved":   r.OriginsMoved,
		"notes_created":   r.NotesCreated,
	}
}

// CreatorMismatch is a deal found for a case number that was not created by
// the integration user.
type CreatorMismatch struct {
	CNJ        string
	DealID     int64
	Title      string
	CreatorID  int64
	StatusID   int64
	PipelineID int64
}

type InteractionResult struct {
	DealID      int64
	CNJ         string
	HadCorrect  bool
	HadWrong    bool
	Created     bool
	LastUpdated bool
	Error       string
}

type InteractionReport struct {
	Total       int
	Correct     int
	Wrong       int
	Without     int
	Created     int
	LastUpdated int
	Errors      int
	Results     []InteractionResult
}
