package pipeline

import (
	"context"
	"strings"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

type DealFinder interface {
	SearchByCNJ(ctx context.Context, cnj string) ([]internal.Deal, error)
	GetByID(ctx context.Context, id int64) (*internal.Deal, error)
}

// CRMOfficeLookup reads the office from the first deal parked in the
// deletion stage for a case number: its title, else its origin deal's title.
type CRMOfficeLookup struct {
	Deals           DealFinder
	DeletionStageID int64
}

func (l CRMOfficeLookup) OfficeForCNJ(ctx context.Context, cnj string) (string, error) {
	deals, err := l.Deals.SearchByCNJ(ctx, cnj)
	if err != nil {
		return "", err
	}
	for _, d := range deals {
		if d.StageID != l.DeletionStageID {
			continue
		}
		if title := strings.TrimSpace(d.Title); title != "" {
			return title, nil
		}
		if d.OriginDealID == 0 {
			return "", nil
		}
		origin, err := l.Deals.GetByID(ctx, d.OriginDealID)
		if err != nil || origin == nil {
			return "", err
		}
		return strings.TrimSpace(origin.Title), nil
	}
	return "", nil
}
