package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

type DedupeService interface {
	PipelineReader
	Delete(ctx context.Context, id int64) error
}

type DedupeReport struct {
	Total      int
	WithoutCNJ int
	Groups     int
	Duplicated int
	Deleted    int
	Failed     int
}

// RemoveDuplicates keeps the oldest deal per case number in a pipeline and
// deletes the others. Deals without a case-number field are left alone.
func RemoveDuplicates(ctx context.Context, svc DedupeService, pipelineID int64, dryRun bool, logger *slog.Logger) (DedupeReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("pipeline_id", pipelineID, "dry_run", dryRun)

	var report DedupeReport
	deals, err := svc.SearchByPipeline(ctx, pipelineID)
	if err != nil {
		return report, fmt.Errorf("read pipeline %d: %w", pipelineID, err)
	}
	report.Total = len(deals)

	var order []string
	groups := map[string][]internal.Deal{}
	for _, d := range deals {
		cnj := d.FieldCNJ()
		if cnj == "" {
			report.WithoutCNJ++
			continue
		}
		key := util.CanonicalCNJ(cnj)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], d)
	}
	report.Groups = len(groups)

	for _, key := range order {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		report.Duplicated++
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreateDate.Before(group[j].CreateDate)
		})
		logger.Info("duplicate case number", "cnj", key, "deals", len(group), "keeping", group[0].ID)

		for _, d := range group[1:] {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if d.ID == 0 {
				continue
			}
			if dryRun {
				logger.Info("[DRY RUN] would delete duplicate deal", "cnj", key, "deal_id", d.ID)
				report.Deleted++
				continue
			}
			if err := svc.Delete(ctx, d.ID); err != nil {
				report.Failed++
				logger.Error("duplicate delete failed", "cnj", key, "deal_id", d.ID, "error", err)
				continue
			}
			report.Deleted++
		}
	}

	logger.Info("duplicate removal finished", "deals", report.Total, "duplicated", report.Duplicated, "deleted", report.Deleted, "failed", report.Failed)
	return report, nil
}
