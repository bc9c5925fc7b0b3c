package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"poolvault/internal/adapters/config"
	"poolvault/internal/adapters/ledger/ratelimit"
	"poolvault/internal/adapters/ledger/retry"
	"poolvault/internal/metrics"
	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// statusError carries the upstream HTTP status so retry can classify it
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ledger returned status %d: %s", e.code, e.body)
}

func (e *statusError) StatusCode() int {
	return e.code
}

// RPCClient talks to the ledger program's indexer over HTTP JSON.
// All calls are read-only, rate limited and bounded by a per-call
// timeout so a slow ledger degrades valuation instead of blocking it.
type RPCClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *ratelimit.Limiter
	retrier *retry.Middleware
	log     *logger.Logger
}

// NewRPCClient creates a ledger client from configuration
func NewRPCClient(cfg config.LedgerConfig) *RPCClient {
	return &RPCClient{
		baseURL: cfg.BaseURL,
		timeout: cfg.RequestTimeout,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: ratelimit.NewLimiter("ledger", cfg.RequestsPerMinute),
		retrier: retry.New(retry.DefaultConfig()),
		log:     logger.Get(),
	}
}

// Name returns the client identifier
func (c *RPCClient) Name() string {
	return "ledger-rpc"
}

// GetPoolStats returns the ledger's structural pool state.
// Single attempt: a failure here degrades to the next valuation tier,
// so retrying would only delay the fallback.
func (c *RPCClient) GetPoolStats(ctx context.Context) (*PoolStats, error) {
	var stats PoolStats
	if err := c.getJSON(ctx, "/v1/pool/stats", nil, &stats, false); err != nil {
		return nil, err
	}
	stats.ObservedAt = time.Now().UTC()
	return &stats, nil
}

// GetMemberPosition returns the authoritative position for one wallet.
// Single attempt for the same reason as GetPoolStats.
func (c *RPCClient) GetMemberPosition(ctx context.Context, wallet string) (*MemberPosition, error) {
	var pos MemberPosition
	path := "/v1/members/" + url.PathEscape(wallet)
	if err := c.getJSON(ctx, path, nil, &pos, false); err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListMembers fetches one page of the ledger member enumeration
func (c *RPCClient) ListMembers(ctx context.Context, cursor string, limit int) (*MemberPage, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	// Resync enumeration has no fallback tier, so transient failures
	// are worth retrying here.
	var page MemberPage
	if err := c.getJSON(ctx, "/v1/members", params, &page, true); err != nil {
		return nil, err
	}
	return &page, nil
}

// getJSON performs a rate-limited GET and decodes the response. When
// retryable is set, transient failures go through the backoff retrier.
// Any failure other than a 404 is normalized to ErrLedgerUnavailable so
// callers can fall through to the next valuation tier.
func (c *RPCClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}, retryable bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrLedgerUnavailable, err.Error())
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempt := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return errors.Wrap(err, "failed to build ledger request")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return errors.Wrapf(err, "ledger request to %s failed", path)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return errors.ErrNotFound
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &statusError{code: resp.StatusCode, body: string(body)}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "failed to decode ledger response from %s", path)
		}

		return nil
	}

	start := time.Now()
	var err error
	if retryable {
		err = c.retrier.Do(ctx, attempt)
	} else {
		err = attempt()
	}

	metrics.RecordLedgerCall(path, time.Since(start), err)

	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.ErrNotFound
		}
		c.log.Warnw("Ledger call failed", "path", path, "error", err)
		return errors.Wrap(errors.ErrLedgerUnavailable, err.Error())
	}

	return nil
}
