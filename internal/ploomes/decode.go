package ploomes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
)

type dealPayload struct {
	ID                      int64                    `json:"Id"`
	Title                   string                   `json:"Title"`
	StageID                 int64                    `json:"StageId"`
	PipelineID              int64                    `json:"PipelineId"`
	OriginDealID            int64                    `json:"OriginDealId"`
	LastInteractionRecordID int64                    `json:"LastInteractionRecordId"`
	CreatorID               int64                    `json:"CreatorId"`
	StatusID                int64                    `json:"StatusId"`
	CreateDate              string                   `json:"CreateDate"`
	OtherProperties         []internal.OtherProperty `json:"OtherProperties"`
}

type interactionPayload struct {
	ID      int64  `json:"Id"`
	DealID  int64  `json:"DealId"`
	Content string `json:"Content"`
}

// unwrap returns the items of an OData {"value":[...]} envelope. When the
// body is not enveloped it is returned as a single item, or as the items of
// a bare array.
func unwrap(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if raw, ok := envelope["value"]; ok {
		var items []json.RawMessage
		if string(bytes.TrimSpace(raw)) == "null" {
			return nil, nil
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("value envelope: %w", err)
		}
		return items, nil
	}
	return []json.RawMessage{body}, nil
}

func decodeDeals(body []byte) ([]internal.Deal, error) {
	items, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	out := make([]internal.Deal, 0, len(items))
	for _, item := range items {
		var p dealPayload
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, err
		}
		out = append(out, p.toDeal())
	}
	return out, nil
}

// decodeDeal returns the first deal of the response, or nil when there is
// none.
func decodeDeal(body []byte) (*internal.Deal, error) {
	deals, err := decodeDeals(body)
	if err != nil {
		return nil, err
	}
	if len(deals) == 0 || deals[0].ID == 0 {
		return nil, nil
	}
	return &deals[0], nil
}

func decodeInteraction(body []byte) (*internal.InteractionRecord, error) {
	items, err := unwrap(body)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	var p interactionPayload
	if err := json.Unmarshal(items[0], &p); err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &internal.InteractionRecord{ID: p.ID, DealID: p.DealID, Content: p.Content}, nil
}

func (p dealPayload) toDeal() internal.Deal {
	return internal.Deal{
		ID:                      p.ID,
		Title:                   strings.TrimSpace(p.Title),
		StageID:                 p.StageID,
		PipelineID:              p.PipelineID,
		OriginDealID:            p.OriginDealID,
		LastInteractionRecordID: p.LastInteractionRecordID,
		CreatorID:               p.CreatorID,
		StatusID:                p.StatusID,
		CreateDate:              parseDate(p.CreateDate),
		OtherProperties:         p.OtherProperties,
	}
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
