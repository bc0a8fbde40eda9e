// Package wfm implements the Source contract against the workforce
// management system's REST API.
package wfm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

const (
	// Secret keys holding the per-team API credentials.
	SecretClientID     = "wfm_client_id"
	SecretClientSecret = "wfm_client_secret"

	requestTimeout = 30 * time.Second
	tokenSlack     = time.Minute
)

type token struct {
	value     string
	expiresAt time.Time
}

// Client talks to the WFM REST API. Tokens are fetched per team with the
// credentials from the secrets store and cached until shortly before expiry.
type Client struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	secrets protocol.Secrets

	mu     sync.Mutex
	tokens map[string]*token
}

func NewClient(logger *slog.Logger, baseURL string, secrets protocol.Secrets) *Client {
	return &Client{
		logger:  logger.With("module", "wfm"),
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
		secrets: secrets,
		tokens:  make(map[string]*token),
	}
}

type shiftPayload struct {
	ID         string           `json:"id"`
	EmployeeID string           `json:"employee_id"`
	JobRef     string           `json:"job_ref"`
	StartAt    time.Time        `json:"start_at"`
	EndAt      time.Time        `json:"end_at"`
	Jobs       []segmentPayload `json:"jobs"`
	Activities []segmentPayload `json:"activities"`
}

type segmentPayload struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Theme       string    `json:"theme"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

func (c *Client) ListWeekShifts(ctx context.Context, team *models.Team, weekStart time.Time) ([]*models.ShiftRecord, error) {
	query := url.Values{}
	query.Set("week_start", weekStart.Format("2006-01-02"))
	query.Set("time_zone", team.TimeZone)

	path := fmt.Sprintf("/v1/business-units/%s/shifts?%s", url.PathEscape(team.WFMBuID), query.Encode())

	var payload struct {
		Shifts []shiftPayload `json:"shifts"`
	}

	err := c.get(ctx, team, path, &payload)
	if err != nil {
		return nil, err
	}

	records := make([]*models.ShiftRecord, 0, len(payload.Shifts))
	for _, shift := range payload.Shifts {
		records = append(records, &models.ShiftRecord{
			SourceID:   shift.ID,
			Employee:   models.EmployeeRef{SourceID: shift.EmployeeID},
			Group:      models.GroupRef{SourceRef: shift.JobRef},
			StartAt:    shift.StartAt,
			EndAt:      shift.EndAt,
			Jobs:       mapSegments(shift.Jobs),
			Activities: mapSegments(shift.Activities),
		})
	}

	return records, nil
}

func mapSegments(segments []segmentPayload) []models.SubShift {
	if len(segments) == 0 {
		return nil
	}

	mapped := make([]models.SubShift, 0, len(segments))
	for _, segment := range segments {
		mapped = append(mapped, models.SubShift{
			Code:        segment.Code,
			DisplayName: segment.DisplayName,
			Theme:       segment.Theme,
			StartAt:     segment.StartAt,
			EndAt:       segment.EndAt,
		})
	}

	return mapped
}

func (c *Client) GetEmployee(ctx context.Context, team *models.Team, sourceID string) (string, error) {
	var payload struct {
		Login string `json:"login"`
	}

	err := c.get(ctx, team, "/v1/employees/"+url.PathEscape(sourceID), &payload)
	if err != nil {
		return "", err
	}

	return payload.Login, nil
}

func (c *Client) GetJob(ctx context.Context, team *models.Team, sourceRef string) (string, error) {
	var payload struct {
		Name string `json:"name"`
	}

	err := c.get(ctx, team, "/v1/jobs/"+url.PathEscape(sourceRef), &payload)
	if err != nil {
		return "", err
	}

	return payload.Name, nil
}

// get performs an authenticated GET, re-authenticating once on 401.
func (c *Client) get(ctx context.Context, team *models.Team, path string, out any) error {
	bearer, err := c.bearer(ctx, team, false)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, path, bearer)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		bearer, err = c.bearer(ctx, team, true)
		if err != nil {
			return err
		}

		status, body, err = c.do(ctx, path, bearer)
		if err != nil {
			return err
		}
	}

	if status == http.StatusNotFound {
		return fmt.Errorf("GET %s: %w", path, protocol.ErrNotFound)
	}

	if status >= http.StatusBadRequest {
		return protocol.NewStatusError("GET "+path, status, string(body))
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, path, bearer string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// bearer returns a valid token for the team, fetching a fresh one with the
// stored credentials when missing, expired or forced.
func (c *Client) bearer(ctx context.Context, team *models.Team, force bool) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[team.ID]
	c.mu.Unlock()

	if ok && !force && time.Now().Before(cached.expiresAt.Add(-tokenSlack)) {
		return cached.value, nil
	}

	clientID, err := c.secrets.Get(ctx, team.ID, SecretClientID)
	if err != nil {
		return "", fmt.Errorf("failed to load WFM client id: %w", err)
	}

	clientSecret, err := c.secrets.Get(ctx, team.ID, SecretClientSecret)
	if err != nil {
		return "", fmt.Errorf("failed to load WFM client secret: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", protocol.NewStatusError("POST /v1/auth/token", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	err = json.Unmarshal(body, &tokenResp)
	if err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	fresh := &token{
		value:     tokenResp.AccessToken,
		expiresAt: time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}

	c.mu.Lock()
	c.tokens[team.ID] = fresh
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Refreshed WFM token", "team_id", team.ID)

	return fresh.value, nil
}
