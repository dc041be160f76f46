package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fennecvideo/fennec/internal/errdefs"
	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/utils"
)

// The model hosts are HTTP sidecars, one per model, each exposing:
//
//	GET  /ready      -> 200 when the model is loaded, 503 while loading
//	POST /<op>       -> JSON in, JSON out
//
// A host that is down or still loading maps to errdefs.ErrModelNotReady so
// the pipeline can put the job back instead of burning a retry.

type hostClient struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func newHostClient(log *logger.Logger, name, envKey, defaultURL string) *hostClient {
	baseURL := strings.TrimRight(utils.GetEnv(envKey, defaultURL, log), "/")

	timeoutSec := 600
	if v := utils.GetEnv("MODEL_HOST_TIMEOUT_SECONDS", "", log); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &hostClient{
		log:        log.With("client", name),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

type hostHTTPError struct {
	StatusCode int
	Body       string
}

func (e *hostHTTPError) Error() string {
	return fmt.Sprintf("model host http %d: %s", e.StatusCode, e.Body)
}

func (c *hostClient) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ready", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errdefs.ErrModelNotReady, c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", errdefs.ErrModelNotReady, c.baseURL, resp.StatusCode)
	}
	return nil
}

// postJSON posts in and decodes the response into out, translating
// transport and status failures into the pipeline error taxonomy.
func (c *hostClient) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %s%s timed out: %v", errdefs.ErrStageTransient, c.baseURL, path, err)
		}
		return fmt.Errorf("%w: %s unreachable: %v", errdefs.ErrModelNotReady, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if readErr != nil {
		return fmt.Errorf("%w: read response: %v", errdefs.ErrStageTransient, readErr)
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s%s still loading", errdefs.ErrModelNotReady, c.baseURL, path)
	}
	if resp.StatusCode != http.StatusOK {
		herr := &hostHTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", errdefs.ErrStageTransient, herr)
		}
		return herr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response from %s%s: %v", errdefs.ErrStageTransient, c.baseURL, path, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
