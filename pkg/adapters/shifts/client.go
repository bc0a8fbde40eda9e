// Package shifts implements the Destination contract against the scheduling
// product's REST API.
package shifts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// SecretAPIToken is the secret key holding the per-team API token.
const SecretAPIToken = "shifts_api_token"

const requestTimeout = 30 * time.Second

// Client talks to the scheduling product's REST API with a per-team token
// from the secrets store.
type Client struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	secrets protocol.Secrets
}

func NewClient(logger *slog.Logger, baseURL string, secrets protocol.Secrets) *Client {
	return &Client{
		logger:  logger.With("module", "shifts"),
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
		secrets: secrets,
	}
}

func (c *Client) GetSchedule(ctx context.Context, teamID string) (*protocol.Schedule, error) {
	var schedule protocol.Schedule

	err := c.call(ctx, teamID, http.MethodGet, teamPath(teamID, "/schedule"), nil, &schedule)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}

func (c *Client) CreateSchedule(ctx context.Context, teamID, timeZone string) (*protocol.Schedule, error) {
	var schedule protocol.Schedule

	err := c.call(ctx, teamID, http.MethodPost, teamPath(teamID, "/schedule"),
		map[string]string{"time_zone": timeZone}, &schedule)
	if err != nil {
		return nil, err
	}

	return &schedule, nil
}

func (c *Client) CreateShift(ctx context.Context, teamID string, shift *protocol.DestinationShift) (string, error) {
	var created struct {
		ID string `json:"id"`
	}

	err := c.call(ctx, teamID, http.MethodPost, teamPath(teamID, "/shifts"), shift, &created)
	if err != nil {
		return "", err
	}

	return created.ID, nil
}

func (c *Client) UpdateShift(ctx context.Context, teamID string, shift *protocol.DestinationShift) error {
	return c.call(ctx, teamID, http.MethodPut, teamPath(teamID, "/shifts/"+url.PathEscape(shift.ID)), shift, nil)
}

func (c *Client) DeleteShift(ctx context.Context, teamID, shiftID string) error {
	return c.call(ctx, teamID, http.MethodDelete, teamPath(teamID, "/shifts/"+url.PathEscape(shiftID)), nil, nil)
}

func (c *Client) ListShifts(ctx context.Context, teamID string, from, to time.Time) ([]*protocol.DestinationShift, error) {
	query := url.Values{}
	query.Set("from", from.Format(time.RFC3339))
	query.Set("to", to.Format(time.RFC3339))

	var payload struct {
		Shifts []*protocol.DestinationShift `json:"shifts"`
	}

	err := c.call(ctx, teamID, http.MethodGet, teamPath(teamID, "/shifts?"+query.Encode()), nil, &payload)
	if err != nil {
		return nil, err
	}

	return payload.Shifts, nil
}

func (c *Client) GetOrCreateSchedulingGroup(ctx context.Context, teamID, name string, memberIDs []string) (string, error) {
	var group struct {
		ID string `json:"id"`
	}

	err := c.call(ctx, teamID, http.MethodPost, teamPath(teamID, "/scheduling-groups"),
		map[string]any{"name": name, "member_ids": memberIDs}, &group)
	if err != nil {
		return "", err
	}

	return group.ID, nil
}

func (c *Client) ListSchedulingGroups(ctx context.Context, teamID string) (map[string]string, error) {
	var payload struct {
		Groups []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"groups"`
	}

	err := c.call(ctx, teamID, http.MethodGet, teamPath(teamID, "/scheduling-groups"), nil, &payload)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]string, len(payload.Groups))
	for _, group := range payload.Groups {
		groups[group.Name] = group.ID
	}

	return groups, nil
}

func (c *Client) RemoveSchedulingGroup(ctx context.Context, teamID, groupID string) error {
	return c.call(ctx, teamID, http.MethodDelete, teamPath(teamID, "/scheduling-groups/"+url.PathEscape(groupID)), nil, nil)
}

func (c *Client) ShareSchedule(ctx context.Context, teamID string, start, end time.Time, notify bool) error {
	return c.call(ctx, teamID, http.MethodPost, teamPath(teamID, "/schedule/share"), map[string]any{
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
		"notify": notify,
	}, nil)
}

func (c *Client) ListMembers(ctx context.Context, teamID string) ([]*models.Member, error) {
	var payload struct {
		Members []*models.Member `json:"members"`
	}

	err := c.call(ctx, teamID, http.MethodGet, teamPath(teamID, "/members"), nil, &payload)
	if err != nil {
		return nil, err
	}

	return payload.Members, nil
}

func teamPath(teamID, suffix string) string {
	return "/v1/teams/" + url.PathEscape(teamID) + suffix
}

// call performs one authenticated request. 404 maps to ErrNotFound; any
// other error-class status becomes a StatusError the retry policies
// classify on.
func (c *Client) call(ctx context.Context, teamID, method, path string, payload, out any) error {
	apiToken, err := c.secrets.Get(ctx, teamID, SecretAPIToken)
	if err != nil {
		return fmt.Errorf("failed to load API token: %w", err)
	}

	var reqBody io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+apiToken)
	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", method, path, protocol.ErrNotFound)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return protocol.NewStatusError(method+" "+path, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}
