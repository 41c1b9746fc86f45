// Package bidclient is a small HTTP client for the bidding API. It retries
// a bid only when the server reports PersistenceUnavailable, and reuses one
// idempotency key across those retries so a bid is never placed twice.
package bidclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auction-storefront/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	headerBidderID       = "X-Bidder-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

type Config struct {
	BaseURL        string
	BidderID       string
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	newKey     func() string
}

func New(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		newKey:     uuid.NewString,
	}
}

type placeBidBody struct {
	Amount         string `json:"amount"`
	ExpectedPrice  string `json:"expected_price,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// errRetryable marks an attempt the server asked us to repeat.
var errRetryable = errors.New("bid not recorded yet")

// PlaceBid submits a bid and returns the server's decision. A rejection is a
// result, not an error; err is set only when no decision could be obtained.
// Pass the price the bid was based on as expectedPrice to have the bid
// rejected with ConcurrentConflict when someone else moved it first; with nil
// the bid is judged against whatever the price is when it arrives.
func (c *Client) PlaceBid(ctx context.Context, itemID string, amount decimal.Decimal, expectedPrice *decimal.Decimal) (*domain.BidResult, error) {
	body := placeBidBody{
		Amount:         amount.StringFixed(domain.MoneyScale),
		IdempotencyKey: c.newKey(),
	}
	if expectedPrice != nil {
		body.ExpectedPrice = expectedPrice.StringFixed(domain.MoneyScale)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/v1/items/%s/bids", c.cfg.BaseURL, url.PathEscape(itemID))

	var result *domain.BidResult
	operation := func() error {
		res, err := c.submit(ctx, endpoint, body.IdempotencyKey, payload)
		if err != nil {
			return err
		}
		result = res
		if res.Err != nil && res.Err.Retryable() {
			return errRetryable
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.InitialBackoff
	policy.MaxInterval = c.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.cfg.MaxRetries), ctx))
	if errors.Is(err, errRetryable) {
		// Out of retries; hand back the last rejection.
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) submit(ctx context.Context, endpoint, key string, payload []byte) (*domain.BidResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerBidderID, c.cfg.BidderID)
	req.Header.Set(headerIdempotencyKey, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures are retried with the same key.
		return nil, fmt.Errorf("post bid: %w", err)
	}
	defer resp.Body.Close()

	var result domain.BidResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || (!result.Accepted && result.Err == nil) {
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("bid endpoint returned %d", resp.StatusCode)
		}
		return nil, backoff.Permanent(fmt.Errorf("unexpected response %d from bid endpoint", resp.StatusCode))
	}
	return &result, nil
}
