// Package net is the HTTP client for a running chimera server.
package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/mchmarny/chimera/pkg/predict"
	"github.com/mchmarny/chimera/pkg/score"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "chimera-cli"
	maxResponseBytes = 1 << 20
)

var reqTransport = &http.Transport{
	MaxIdleConns:          maxIdleConns,
	IdleConnTimeout:       timeoutInSeconds * time.Second,
	DisableCompression:    true,
	DisableKeepAlives:     false,
	ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
}

// StatusError is returned for unexpected response codes.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

type errorResponse struct {
	Error   string             `json:"error"`
	Details []score.FieldError `json:"details"`
}

// Client calls the prediction API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL. A nil hc uses a
// default client with the package transport.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if hc == nil {
		hc = &http.Client{
			Timeout:   time.Duration(timeoutInSeconds) * time.Second,
			Transport: reqTransport,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}, nil
}

// Predict posts in to /predict. A 422 response is returned as
// *score.ValidationError.
func (c *Client) Predict(ctx context.Context, in score.Input) (*predict.Result, error) {
	b, err := json.Marshal(score.NewRequest(in))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var res predict.Result
	if err := c.do(ctx, http.MethodPost, "/predict", bytes.NewReader(b), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Model returns the server's predictor description.
func (c *Client) Model(ctx context.Context) (*predict.Info, error) {
	var info predict.Info
	if err := c.do(ctx, http.MethodGet, "/model", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Health returns the root status message.
func (c *Client) Health(ctx context.Context) (string, error) {
	var msg struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/", nil, &msg); err != nil {
		return "", err
	}
	return msg.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", clientAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req) //nolint:gosec // URL from CLI flag
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()
	printHTTPResponse(resp)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding content: %w", err)
	}
	return nil
}

func decodeError(code int, data []byte) error {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return &StatusError{Code: code, Message: strings.TrimSpace(string(data))}
	}
	if code == http.StatusUnprocessableEntity && len(er.Details) > 0 {
		return &score.ValidationError{Fields: er.Details}
	}
	return &StatusError{Code: code, Message: er.Error}
}

func printHTTPResponse(resp *http.Response) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if dump, err := httputil.DumpResponse(resp, false); err == nil {
		slog.Debug("http response", "dump", string(dump))
	}
}
