package pipeline

import (
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

// Error text columns accepted by the interaction validator input.
var InteractionErrorColumns = []string{"Erro", "Error", "Description", "Descrição"}

// LoadBatch reads the preserve list. The CNJ column is required; error text
// comes from the first of errorColumns present (default "Erro").
func LoadBatch(path string, errorColumns ...string) (internal.Batch, error) {
	t, err := ReadTable(path)
	if err != nil {
		return internal.Batch{}, err
	}
	return BatchFromTable(t, errorColumns...)
}

func BatchFromTable(t *Table, errorColumns ...string) (internal.Batch, error) {
	if len(errorColumns) == 0 {
		errorColumns = []string{"Erro"}
	}
	cnjIdx, err := t.MustIndex("CNJ")
	if err != nil {
		return internal.Batch{}, err
	}
	errIdx := t.Index(errorColumns...)

	batch := internal.Batch{Errors: map[string]string{}}
	seen := map[string]bool{}
	for _, row := range t.Rows {
		raw := pickCell(row, cnjIdx)
		if raw == "" {
			continue
		}
		key := util.CanonicalCNJ(raw)
		if !seen[key] {
			seen[key] = true
			batch.CNJs = append(batch.CNJs, raw)
		}
		if msg := pickCell(row, errIdx); msg != "" {
			batch.Errors[key] = msg
		}
	}
	return batch, nil
}
