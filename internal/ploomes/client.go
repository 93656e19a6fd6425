package ploomes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/config"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/transport"
	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

const (
	pageSize = 300
	maxPages = 200
)

// Client talks to the Ploomes REST API. All calls share one pacing limiter.
type Client struct {
	api    *transport.Client
	logger *slog.Logger
}

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Require("PLOOMES_API_TOKEN", cfg.PloomesAPIToken); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ploomes")

	policy := transport.DefaultRetryPolicy()
	if cfg.PloomesMaxRetries > 0 {
		policy.MaxAttempts = cfg.PloomesMaxRetries
	}
	return &Client{
		api: &transport.Client{
			HTTP:    &http.Client{Timeout: time.Duration(cfg.PloomesTimeoutMs) * time.Millisecond},
			BaseURL: cfg.PloomesBaseURL,
			Header:  http.Header{"User-Key": []string{cfg.PloomesAPIToken}},
			Limiter: transport.NewAdaptiveLimiter(
				time.Duration(cfg.PloomesMinIntervalMs)*time.Millisecond,
				time.Duration(cfg.PloomesMaxIntervalMs)*time.Millisecond,
			),
			Policy: policy,
			Logger: logger,
		},
		logger: logger,
	}, nil
}

// SearchByCNJ finds deals whose case-number field equals the 20 digits of
// cnj. Inputs that are not valid case numbers match nothing.
func (c *Client) SearchByCNJ(ctx context.Context, cnj string) ([]internal.Deal, error) {
	digits := util.Digits(cnj)
	if len(digits) != 20 {
		c.logger.Warn("cnj with invalid format, skipping search", "cnj", cnj)
		return nil, nil
	}
	filter := fmt.Sprintf("OtherProperties/any(op: op/FieldKey eq '%s' and op/StringValue eq '%s')", util.CNJFieldKey, digits)
	return c.searchAll(ctx, filter)
}

func (c *Client) SearchByStage(ctx context.Context, stageID int64) ([]internal.Deal, error) {
	if stageID <= 0 {
		return nil, fmt.Errorf("invalid stage id: %d", stageID)
	}
	deals, err := c.searchAll(ctx, fmt.Sprintf("StageId eq %d", stageID))
	if err != nil {
		return nil, err
	}
	c.logger.Info("deals found in stage", "stage_id", stageID, "count", len(deals))
	return deals, nil
}

// SearchByStageCreatedBefore keeps deals created before cutoff. Deals without
// a parseable creation date are kept.
func (c *Client) SearchByStageCreatedBefore(ctx context.Context, stageID int64, cutoff time.Time) ([]internal.Deal, error) {
	deals, err := c.SearchByStage(ctx, stageID)
	if err != nil || cutoff.IsZero() {
		return deals, err
	}
	out := deals[:0]
	for _, d := range deals {
		if d.CreateDate.IsZero() || d.CreateDate.Before(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Client) SearchByPipeline(ctx context.Context, pipelineID int64) ([]internal.Deal, error) {
	if pipelineID <= 0 {
		return nil, fmt.Errorf("invalid pipeline id: %d", pipelineID)
	}
	return c.searchAll(ctx, fmt.Sprintf("PipelineId eq %d", pipelineID))
}

// GetByID returns nil without error when the deal does not exist.
func (c *Client) GetByID(ctx context.Context, id int64) (*internal.Deal, error) {
	if id <= 0 {
		return nil, nil
	}
	body, err := c.api.Do(ctx, transport.Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("Deals(%d)", id),
		RawQuery: "$expand=OtherProperties",
	})
	if transport.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	deal, err := decodeDeal(body)
	if err != nil {
		return nil, malformed(http.MethodGet, fmt.Sprintf("Deals(%d)", id), err)
	}
	return deal, nil
}

// UpdateStage moves a deal and checks that the API reports the new stage.
func (c *Client) UpdateStage(ctx context.Context, id, stageID int64) error {
	if id <= 0 || stageID <= 0 {
		return fmt.Errorf("invalid deal/stage id: %d/%d", id, stageID)
	}
	endpoint := fmt.Sprintf("Deals(%d)", id)
	body, err := c.api.Do(ctx, transport.Request{
		Method:   http.MethodPatch,
		Endpoint: endpoint,
		Body:     map[string]int64{"StageId": stageID},
	})
	if err != nil {
		return err
	}
	updated, err := decodeDeal(body)
	if err != nil {
		return malformed(http.MethodPatch, endpoint, err)
	}
	if updated == nil || updated.StageID != stageID {
		return fmt.Errorf("deal %d: stage update to %d not applied", id, stageID)
	}
	c.logger.Info("deal moved", "deal_id", id, "stage_id", stageID)
	return nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid deal id: %d", id)
	}
	if _, err := c.api.Do(ctx, transport.Request{Method: http.MethodDelete, Endpoint: fmt.Sprintf("Deals(%d)", id)}); err != nil {
		return err
	}
	c.logger.Info("deal deleted", "deal_id", id)
	return nil
}

// CreateNote posts an interaction record on the deal and returns its id.
func (c *Client) CreateNote(ctx context.Context, dealID int64, content string) (int64, error) {
	if dealID <= 0 || strings.TrimSpace(content) == "" {
		return 0, errors.New("create note: deal id and content are required")
	}
	body, err := c.api.Do(ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: "InteractionRecords",
		Body:     map[string]any{"DealId": dealID, "Content": content},
	})
	if err != nil {
		return 0, err
	}
	record, err := decodeInteraction(body)
	if err != nil {
		return 0, malformed(http.MethodPost, "InteractionRecords", err)
	}
	if record == nil {
		return 0, fmt.Errorf("deal %d: interaction record created without id", dealID)
	}
	c.logger.Info("interaction record created", "deal_id", dealID, "record_id", record.ID)
	return record.ID, nil
}

func (c *Client) SetLastNote(ctx context.Context, dealID, noteID int64) error {
	if dealID <= 0 || noteID <= 0 {
		return fmt.Errorf("invalid deal/record id: %d/%d", dealID, noteID)
	}
	_, err := c.api.Do(ctx, transport.Request{
		Method:   http.MethodPatch,
		Endpoint: fmt.Sprintf("Deals(%d)", dealID),
		Body:     map[string]int64{"LastInteractionRecordId": noteID},
	})
	return err
}

// GetInteractionRecord returns nil without error when the record does not
// exist.
func (c *Client) GetInteractionRecord(ctx context.Context, id int64) (*internal.InteractionRecord, error) {
	if id <= 0 {
		return nil, nil
	}
	endpoint := fmt.Sprintf("InteractionRecords(%d)", id)
	body, err := c.api.Do(ctx, transport.Request{Method: http.MethodGet, Endpoint: endpoint})
	if transport.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record, err := decodeInteraction(body)
	if err != nil {
		return nil, malformed(http.MethodGet, endpoint, err)
	}
	return record, nil
}

// searchAll pages through Deals with $top/$skip until a short page, an
// empty page, or a page with no unseen ids.
func (c *Client) searchAll(ctx context.Context, filter string) ([]internal.Deal, error) {
	var all []internal.Deal
	seen := map[int64]struct{}{}

	for page := 0; page < maxPages; page++ {
		query := "$filter=" + odataEscape(filter) +
			"&$expand=OtherProperties" +
			fmt.Sprintf("&$top=%d&$skip=%d", pageSize, page*pageSize)

		body, err := c.api.Do(ctx, transport.Request{Method: http.MethodGet, Endpoint: "Deals", RawQuery: query})
		if err != nil {
			return nil, err
		}
		deals, err := decodeDeals(body)
		if err != nil {
			return nil, malformed(http.MethodGet, "Deals", err)
		}

		fresh := 0
		for _, d := range deals {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			all = append(all, d)
			fresh++
		}
		if len(deals) < pageSize || fresh == 0 {
			break
		}
	}
	return all, nil
}

func odataEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

func malformed(method, endpoint string, err error) error {
	return &transport.APIError{Status: http.StatusOK, Method: method, Endpoint: endpoint, Body: "malformed response: " + err.Error()}
}
