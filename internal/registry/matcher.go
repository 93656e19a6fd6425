package registry

import (
	"strings"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

const DefaultThreshold = 0.93

// Matcher canonicalizes office names against the mesa office registry.
type Matcher struct {
	cache     *Cache
	threshold float64
}

func NewMatcher(cache *Cache, threshold float64) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Matcher{cache: cache, threshold: threshold}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// NormalizeOfficeName returns the registry spelling of raw. When the name was
// corrected by similarity, fuzzyOriginal holds the trimmed input and
// corrected is true.
//
// Ties on similarity go to the key that comes first in the registry file.
func (m *Matcher) NormalizeOfficeName(raw, mesa string) (name, fuzzyOriginal string, corrected bool) {
	name = strings.TrimSpace(raw)
	if name == "" {
		return "", "", false
	}
	reg := m.cache.Offices(mesa)
	if reg.Len() == 0 {
		return name, "", false
	}

	keys := reg.Keys()
	folded := util.FoldKey(name)
	for _, key := range keys {
		if util.FoldKey(key) == folded {
			return key, "", false
		}
	}

	best, bestScore := "", 0.0
	for _, key := range keys {
		if score := util.SimilarityRatio(name, key); score > bestScore {
			best, bestScore = key, score
		}
	}
	if best != "" && bestScore >= m.threshold {
		return best, name, true
	}
	return name, "", false
}
