package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

const DefaultMaxAge = 7 * 24 * time.Hour

type LeadSource interface {
	AllLeads(ctx context.Context) ([]internal.Lead, error)
}

type MetadataStore interface {
	SetMetadata(key, value string) error
	GetMetadata(key string) (*string, error)
}

type UpdateResult struct {
	Mesa        string
	Leads       int
	Offices     int
	Negotiators int
}

// Updater rebuilds the per-mesa office and negotiator registries from the
// partner lead list.
type Updater struct {
	cache  *Cache
	store  MetadataStore
	logger *slog.Logger
	now    func() time.Time
}

func NewUpdater(cache *Cache, store MetadataStore, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{cache: cache, store: store, logger: logger.With("component", "registry-updater"), now: time.Now}
}

func metadataKey(mesa string) string {
	return "registry.last_update." + strings.ToLower(strings.TrimSpace(mesa))
}

// LastUpdate reports when the mesa registries were last rebuilt.
func (u *Updater) LastUpdate(mesa string) (time.Time, bool, error) {
	if u.store == nil {
		return time.Time{}, false, nil
	}
	last, err := u.store.GetMetadata(metadataKey(mesa))
	if err != nil || last == nil {
		return time.Time{}, false, err
	}
	parsed, err := time.Parse(time.RFC3339, *last)
	if err != nil {
		return time.Time{}, false, nil
	}
	return parsed, true, nil
}

// UpdateIfStale rebuilds the registries when forced, when no previous update
// is recorded, or when the last one is older than maxAge.
func (u *Updater) UpdateIfStale(ctx context.Context, mesa string, src LeadSource, maxAge time.Duration, force bool) (*UpdateResult, error) {
	if !force {
		last, ok, err := u.LastUpdate(mesa)
		if err != nil {
			return nil, err
		}
		if ok && u.now().Sub(last) < maxAge {
			u.logger.Debug("registry fresh, skipping update", "mesa", mesa, "last_update", last)
			return nil, nil
		}
	}
	res, err := u.Update(ctx, mesa, src)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (u *Updater) Update(ctx context.Context, mesa string, src LeadSource) (UpdateResult, error) {
	res := UpdateResult{Mesa: mesa}

	leads, err := src.AllLeads(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch leads for %s: %w", mesa, err)
	}
	res.Leads = len(leads)

	offices, negotiators := CollectNames(leads)
	res.Offices, res.Negotiators = len(offices), len(negotiators)

	if err := SaveNames(u.cache.Path(CategoryOffices, mesa), CategoryOffices, offices); err != nil {
		return res, fmt.Errorf("write office registry: %w", err)
	}
	if err := SaveNames(u.cache.Path(CategoryNegotiators, mesa), CategoryNegotiators, negotiators); err != nil {
		return res, fmt.Errorf("write negotiator registry: %w", err)
	}
	u.cache.Invalidate(mesa)

	if u.store != nil {
		if err := u.store.SetMetadata(metadataKey(mesa), u.now().UTC().Format(time.RFC3339)); err != nil {
			return res, err
		}
	}

	u.logger.Info("registry updated", "mesa", mesa, "leads", res.Leads, "offices", res.Offices, "negotiators", res.Negotiators)
	return res, nil
}

// CollectNames returns the distinct office and negotiator names found in
// leads. Negotiator names are sanitized.
func CollectNames(leads []internal.Lead) (offices, negotiators []string) {
	seenOffice := map[string]bool{}
	seenNeg := map[string]bool{}
	for _, l := range leads {
		if o := strings.TrimSpace(l.EscritorioResponsavel); o != "" && !seenOffice[o] {
			seenOffice[o] = true
			offices = append(offices, o)
		}
		if n := util.SanitizeName(l.Negociador); n != "" && !seenNeg[n] {
			seenNeg[n] = true
			negotiators = append(negotiators, n)
		}
	}
	return offices, negotiators
}
