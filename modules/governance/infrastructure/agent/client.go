// Package agent holds the HTTP client for the external validator agent.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rowanvale/substratum/modules/governance/domain/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("validator agent: http %d: %s", e.StatusCode, msg)
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("validator agent: missing base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.New("validator agent: invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("validator agent: invalid base url scheme")
	}
	if u.Host == "" {
		return nil, errors.New("validator agent: invalid base url host")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type validateRequest struct {
	EntryPoint  string            `json:"entry_point"`
	WorkspaceID string            `json:"workspace_id"`
	BasketID    string            `json:"basket_id"`
	ActorID     string            `json:"actor_id"`
	Mode        string            `json:"mode"`
	Ops         []json.RawMessage `json:"ops"`
}

// Validate submits the descriptor and returns the agent's report. Any
// non-2xx response, timeout, or decode failure is an error; callers must not
// swallow it, since a missing report would break the audit guarantee.
func (c *Client) Validate(ctx context.Context, descriptor types.ChangeDescriptor, mode types.ValidatorMode) (types.ValidationReport, error) {
	ops := make([]json.RawMessage, 0, len(descriptor.Ops))
	for _, op := range descriptor.Ops {
		encoded, err := types.EncodeOperation(op)
		if err != nil {
			return types.ValidationReport{}, err
		}
		ops = append(ops, encoded)
	}

	body, err := json.Marshal(validateRequest{
		EntryPoint:  string(descriptor.EntryPoint),
		WorkspaceID: descriptor.WorkspaceID,
		BasketID:    descriptor.BasketID,
		ActorID:     descriptor.ActorID,
		Mode:        string(mode),
		Ops:         ops,
	})
	if err != nil {
		return types.ValidationReport{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/validate", bytes.NewReader(body))
	if err != nil {
		return types.ValidationReport{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.ValidationReport{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return types.ValidationReport{}, readHTTPError(resp)
	}

	var report types.ValidationReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return types.ValidationReport{}, err
	}
	if report.Confidence < 0 || report.Confidence > 1 {
		return types.ValidationReport{}, fmt.Errorf("validator agent: confidence %v out of range", report.Confidence)
	}
	return report, nil
}

func readHTTPError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(raw, &payload); err == nil {
		message = payload.Message
		if message == "" {
			message = payload.Error
		}
	}
	return &HTTPError{StatusCode: resp.StatusCode, Message: message}
}
