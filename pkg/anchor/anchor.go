// Package anchor submits ledger attestations to an external distributed
// ledger gateway. Anchoring is best-effort: the caller treats failures as
// advisory and the append that triggered them is already durable.
package anchor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/graintrace/core/pkg/ledger"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
	defaultMaxJitter   = 250 * time.Millisecond
)

// HTTPAnchorer posts attestations as JSON to a gateway endpoint and
// retries transient failures with deterministic exponential backoff.
type HTTPAnchorer struct {
	endpoint    string
	client      *http.Client
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxJitter   time.Duration
}

// NewHTTPAnchorer creates an anchorer that posts to endpoint. A nil
// client falls back to a 10-second-timeout default.
func NewHTTPAnchorer(endpoint string, client *http.Client, logger *slog.Logger) *HTTPAnchorer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAnchorer{
		endpoint:    endpoint,
		client:      client,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		maxJitter:   defaultMaxJitter,
	}
}

type anchorResponse struct {
	Reference string `json:"reference"`
	TxHash    string `json:"txHash"`
}

// Anchor submits the attestation and returns the gateway's transaction
// reference. It retries on network errors and 5xx responses; 4xx
// responses fail immediately since a retry would repeat the same reject.
func (a *HTTPAnchorer) Anchor(ctx context.Context, req ledger.AnchorRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode anchor request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := a.backoff(req.StreamDigest, attempt)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		ref, retryable, err := a.submit(ctx, body)
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		a.logger.Warn("anchor attempt failed",
			"attempt", attempt+1, "endpoint", a.endpoint, "error", err)
	}
	return "", fmt.Errorf("anchor failed after %d attempts: %w", a.maxAttempts, lastErr)
}

func (a *HTTPAnchorer) submit(ctx context.Context, body []byte) (ref string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build anchor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("post attestation: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("read anchor response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("gateway returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return "", false, fmt.Errorf("gateway rejected attestation with %d: %s", resp.StatusCode, payload)
	}

	var out anchorResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", false, fmt.Errorf("decode anchor response: %w", err)
	}
	if out.Reference != "" {
		return out.Reference, false, nil
	}
	return out.TxHash, false, nil
}

// backoff computes the delay before a retry: exponential in the attempt
// index, capped, plus jitter derived from a PRF over the request identity
// so replays of the same attestation space out identically.
func (a *HTTPAnchorer) backoff(streamDigest string, attempt int) time.Duration {
	factor := int64(1)
	if attempt > 30 {
		factor = 1 << 30
	} else {
		factor = 1 << attempt
	}
	delay := time.Duration(factor) * a.baseDelay
	if delay > a.maxDelay {
		delay = a.maxDelay
	}

	if a.maxJitter > 0 {
		seed := fmt.Sprintf("%s:%d", streamDigest, attempt)
		hash := sha256.Sum256([]byte(seed))
		basis := binary.BigEndian.Uint64(hash[:8])
		delay += time.Duration(basis % uint64(a.maxJitter)) //nolint:gosec // maxJitter is always positive
	}
	return delay
}

// NopAnchorer discards attestations. Used when no gateway is configured.
type NopAnchorer struct{}

func (NopAnchorer) Anchor(context.Context, ledger.AnchorRequest) (string, error) {
	return "", nil
}
