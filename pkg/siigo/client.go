package siigo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"batchflow/pkg/config"
	"batchflow/services/journal"
)

var Module = fx.Module("siigo.client",
	fx.Provide(New),
)

// SubmissionError reports a document the accounting service rejected or
// could not be reached for.
type SubmissionError struct {
	StatusCode int
	Detail     string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected (status %d): %s", e.StatusCode, e.Detail)
}

// Client talks to a Siigo-compatible accounting API. It authenticates with a
// username and access key, caches the bearer token, and submits one journal
// document per call. Submission is idempotent by document reference on the
// remote side, which makes the pipeline's at-least-once delivery safe.
type Client struct {
	baseURL   string
	username  string
	accessKey string
	partnerID string
	http      *http.Client

	mu    sync.Mutex
	token string
}

func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.Siigo.BaseURL,
		username:  cfg.Siigo.Username,
		accessKey: cfg.Siigo.AccessKey,
		partnerID: cfg.Siigo.PartnerID,
		http:      &http.Client{Timeout: cfg.Siigo.Timeout},
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"username":   c.username,
		"access_key": c.accessKey,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Partner-Id", c.partnerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &SubmissionError{StatusCode: 0, Detail: fmt.Sprintf("authentication request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &SubmissionError{StatusCode: resp.StatusCode, Detail: string(detail)}
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("malformed auth response: %v", err)}
	}

	return out.AccessToken, nil
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	token, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	zap.L().Info("[Siigo] authenticated", zap.String("base_url", c.baseURL))
	return token, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Submit posts one journal document. An expired token is refreshed once and
// the document retried before the error surfaces.
func (c *Client) Submit(ctx context.Context, payload *journal.SubmissionPayload) error {
	err := c.submit(ctx, payload)

	var serr *SubmissionError
	if err != nil && errors.As(err, &serr) && serr.StatusCode == http.StatusUnauthorized {
		c.invalidate()
		err = c.submit(ctx, payload)
	}

	return err
}

func (c *Client) submit(ctx context.Context, payload *journal.SubmissionPayload) error {
	token, err := c.bearer(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/journals", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Partner-Id", c.partnerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return &SubmissionError{StatusCode: 0, Detail: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SubmissionError{StatusCode: resp.StatusCode, Detail: string(detail)}
	}

	return nil
}
