package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dealhunter/backend/internal/domain/settlement"
	"github.com/dealhunter/backend/internal/domain/shared"
)

const defaultRequestTimeout = 30 * time.Second

// Config holds connection settings shared by all collaborator clients
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// baseClient wraps an HTTP client with JSON encoding, API key auth and
// error envelope decoding shared by every collaborator client.
type baseClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newBaseClient(cfg Config) (*baseClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("collaborator base URL cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &baseClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// errorEnvelope is the error shape every collaborator service returns
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs a JSON request against the collaborator service. A non-2xx
// response is decoded into the error envelope and returned as a domain
// error carrying the collaborator's code; fallback is used when the
// response carries no recognizable code.
func (c *baseClient) do(ctx context.Context, method, path string, reqBody, respBody any, fallback *shared.DomainError) error {
	var body io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("collaborator request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.decodeError(raw, resp.StatusCode, fallback)
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// decodeError maps a collaborator error response to a typed domain error
func (c *baseClient) decodeError(raw []byte, status int, fallback *shared.DomainError) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Code != "" {
		if mapped, ok := knownErrors[envelope.Error.Code]; ok {
			return mapped
		}
		return shared.NewDomainError(fallback.Code,
			fmt.Sprintf("%s: %s", fallback.Message, envelope.Error.Message))
	}

	return shared.NewDomainError(fallback.Code,
		fmt.Sprintf("%s: HTTP %d", fallback.Message, status))
}

// knownErrors maps collaborator error codes that callers branch on to the
// corresponding settlement errors. Everything else folds into the calling
// client's fallback code.
var knownErrors = map[string]*shared.DomainError{
	"BAD_SIGNATURE":          settlement.ErrBadSignature,
	"NONCE_REPLAY":           settlement.ErrNonceReplay,
	"INSUFFICIENT_BALANCE":   settlement.ErrInsufficientBalance,
	"INSUFFICIENT_ALLOWANCE": settlement.ErrInsufficientAllowance,
	"DEBT_NOT_CLEARED":       settlement.ErrDebtNotCleared,
}
