package parceiros

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

type pagePayload struct {
	Resultado  []map[string]any `json:"resultado"`
	Informacao struct {
		TotalPaginas    int `json:"total_paginas"`
		QuantidadeItens int `json:"quantidade_itens"`
	} `json:"informacao"`
}

// decodePage accepts the API Gateway shape {"body": {...}} (where body may
// itself be a JSON string) as well as the bare payload.
func decodePage(raw []byte) (Page, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Page{}, err
	}
	payload := raw
	if body, ok := envelope["body"]; ok {
		payload = body
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var inner string
			if err := json.Unmarshal(trimmed, &inner); err != nil {
				return Page{}, err
			}
			payload = []byte(inner)
		}
	}

	var p pagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Page{}, err
	}
	leads := make([]internal.Lead, 0, len(p.Resultado))
	for _, item := range p.Resultado {
		leads = append(leads, toLead(item))
	}
	return Page{Leads: leads, TotalPages: p.Informacao.TotalPaginas, TotalItems: p.Informacao.QuantidadeItens}, nil
}

func toLead(raw map[string]any) internal.Lead {
	return internal.Lead{
		CNJ:                   stringField(raw, "cnj"),
		EscritorioResponsavel: stringField(raw, "escritorio_responsavel"),
		Negociador:            stringField(raw, "negociador"),
		Raw:                   raw,
	}
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}
