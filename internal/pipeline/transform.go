package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/registry"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

const (
	bbmdOffice     = "BERTOLINI E BERNARDES, MADEIRA E DAMBROS ADVOGADOS ASSOCIADOS"
	bbmdNegotiator = "Iasmin Barbosa"
)

var InputColumns = []string{"CNJ", "Nome do Cliente", "Produto", "Responsável", "E-mail do Cliente", "Telefones do Cliente", "Escritório"}

var OutputColumns = []string{"CNJ", "Nome do Lead", "Produto", "Negociador", "E-mail", "Telefone", "Escritório", "OAB", "Teste de Interesse", "Recompra"}

type LeadRow struct {
	CNJ         string
	Cliente     string
	Produto     string
	Responsavel string
	Email       string
	Telefones   string
	Escritorio  string
}

type ImportRow struct {
	CNJ        string
	NomeLead   string
	Produto    string
	Negociador string
	Email      string
	Telefone   string
	Escritorio string
}

func (r ImportRow) values() []any {
	return []any{r.CNJ, r.NomeLead, r.Produto, r.Negociador, r.Email, r.Telefone, r.Escritorio, "", "Sim", "Não"}
}

// OfficeLookup finds the office for a case number in the CRM. An empty name
// means nothing was found.
type OfficeLookup interface {
	OfficeForCNJ(ctx context.Context, cnj string) (string, error)
}

type Transformer struct {
	Mesa           string
	DefaultProduct string
	Matcher        *registry.Matcher
	Registry       *registry.Cache
	Lookup         OfficeLookup
	Logger         *slog.Logger

	errors []string
}

// LeadRowsFromTable maps the input sheet by header name. Missing columns
// read as empty.
func LeadRowsFromTable(t *Table) []LeadRow {
	idx := make([]int, len(InputColumns))
	for i, col := range InputColumns {
		idx[i] = t.Index(col)
	}
	out := make([]LeadRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, LeadRow{
			CNJ:         pickCell(row, idx[0]),
			Cliente:     pickCell(row, idx[1]),
			Produto:     pickCell(row, idx[2]),
			Responsavel: pickCell(row, idx[3]),
			Email:       pickCell(row, idx[4]),
			Telefones:   pickCell(row, idx[5]),
			Escritorio:  pickCell(row, idx[6]),
		})
	}
	return out
}

// Transform produces one import row per input row. Diagnostics accumulate
// in ErrorReport, grouped by column in the order CNJ, phone, CRM office
// lookup, fuzzy office correction.
func (t *Transformer) Transform(ctx context.Context, rows []LeadRow) []ImportRow {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bbmd := strings.EqualFold(strings.TrimSpace(t.Mesa), "bbmd")

	var cnjErrs, phoneErrs, lookupErrs, fuzzyErrs []string
	out := make([]ImportRow, len(rows))
	for i, in := range rows {
		row := ImportRow{NomeLead: in.Cliente}

		if cnj, ok := util.NormalizeCNJ(in.CNJ); ok {
			row.CNJ = cnj
		} else if in.CNJ != "" {
			cnjErrs = append(cnjErrs, fmt.Sprintf("Linha %d: CNJ inválido - Valor original: '%s'", i, in.CNJ))
		}

		row.Produto = util.NormalizeProduct(in.Produto, t.DefaultProduct)
		row.Negociador = t.negotiator(in.Responsavel)
		row.Email = util.NormalizeEmail(util.ExtractFirstValue(in.Email, ";"))

		phoneRaw := util.ExtractFirstValue(in.Telefones, ";")
		if phone, ok := util.NormalizePhone(phoneRaw); ok {
			row.Telefone = phone
		} else if phoneRaw != "" {
			phoneErrs = append(phoneErrs, fmt.Sprintf("Linha %d: Telefone inválido - Valor original: '%s'", i, phoneRaw))
		}

		office, fuzzyOriginal := t.office(in.Escritorio)
		if office == "" && row.CNJ != "" && t.Lookup != nil {
			found, err := t.Lookup.OfficeForCNJ(ctx, row.CNJ)
			if err != nil {
				logger.Warn("office lookup failed", "cnj", row.CNJ, "error", err)
			} else if found != "" {
				office = found
				lookupErrs = append(lookupErrs, fmt.Sprintf("Linha %d: Escritório preenchido via Ploomes - CNJ: '%s' → '%s'", i, row.CNJ, found))
			}
		}
		if fuzzyOriginal != "" {
			fuzzyErrs = append(fuzzyErrs, fmt.Sprintf("Linha %d: Escritório corrigido via fuzzy match - Original: '%s' → Corrigido: '%s'", i, fuzzyOriginal, office))
		}
		row.Escritorio = office

		if bbmd {
			row.Escritorio = bbmdOffice
			row.Negociador = bbmdNegotiator
		}
		out[i] = row
	}

	t.errors = append(t.errors, cnjErrs...)
	t.errors = append(t.errors, phoneErrs...)
	t.errors = append(t.errors, lookupErrs...)
	t.errors = append(t.errors, fuzzyErrs...)
	return out
}

func (t *Transformer) Errors() []string {
	return append([]string(nil), t.errors...)
}

func (t *Transformer) ErrorReport() string {
	if len(t.errors) == 0 {
		return "Nenhum erro encontrado."
	}
	return strings.Join(t.errors, "\n")
}

func (t *Transformer) negotiator(raw string) string {
	if t.Registry == nil {
		return strings.TrimSpace(raw)
	}
	return t.Registry.Negotiator(raw, t.Mesa)
}

func (t *Transformer) office(raw string) (string, string) {
	if t.Matcher == nil {
		return strings.TrimSpace(raw), ""
	}
	name, original, corrected := t.Matcher.NormalizeOfficeName(raw, t.Mesa)
	if !corrected {
		return name, ""
	}
	return name, original
}
