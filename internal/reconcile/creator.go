package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

type CNJSearcher interface {
	SearchByCNJ(ctx context.Context, cnj string) ([]internal.Deal, error)
}

// CheckCreators lists the deals of each case number whose creator is not
// integrationUserID. It only reads.
func CheckCreators(ctx context.Context, svc CNJSearcher, cnjs []string, integrationUserID int64, logger *slog.Logger) ([]internal.CreatorMismatch, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "creator_check")

	var out []internal.CreatorMismatch
	for _, cnj := range cnjs {
		cnj = strings.TrimSpace(cnj)
		if cnj == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		deals, err := svc.SearchByCNJ(ctx, cnj)
		if err != nil {
			return out, fmt.Errorf("search %s: %w", cnj, err)
		}
		for _, d := range deals {
			if d.CreatorID == integrationUserID {
				continue
			}
			out = append(out, internal.CreatorMismatch{
				CNJ:        cnj,
				DealID:     d.ID,
				Title:      d.Title,
				CreatorID:  d.CreatorID,
				StatusID:   d.StatusID,
				PipelineID: d.PipelineID,
			})
		}
	}
	logger.Info("creator check done", "cnjs", len(cnjs), "mismatches", len(out))
	return out, nil
}
