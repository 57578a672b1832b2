// Package venue is the REST client of the perpetual futures venue: public
// market data and the signed account endpoints.
package venue

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

const (
	HeaderAPIKey    = "X-API-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderWindow    = "X-Window"
)

// Client talks to the venue over HTTP. Signed endpoints need credentials;
// public ones work without.
type Client struct {
	http     *resty.Client
	apiKey   string
	signer   *Signer
	windowMs int64
	timeout  time.Duration
	now      func() time.Time
}

// NewClient builds a client. Credentials are optional so dry runs and the
// universe job can use public endpoints only.
func NewClient(cfg config.VenueConfig, timeout time.Duration) (*Client, error) {
	c := &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		apiKey:   cfg.APIKey,
		windowMs: cfg.WindowMs,
		timeout:  timeout,
		now:      time.Now,
	}

	if cfg.APISecret != "" {
		signer, err := NewSigner(cfg.APISecret)
		if err != nil {
			return nil, err
		}

		c.signer = signer
	}

	return c, nil
}

// CanSign reports whether signed endpoints are available.
func (c *Client) CanSign() bool {
	return c.signer != nil && c.apiKey != ""
}

// Tickers returns the 24h tickers of every market.
func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	var out []Ticker

	resp, err := c.request(ctx).SetResult(&out).Get("/api/v1/tickers")
	if err := check(resp, err, "get tickers"); err != nil {
		return nil, err
	}

	return out, nil
}

// Ticker returns the ticker of one market.
func (c *Client) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	var out Ticker

	resp, err := c.request(ctx).SetQueryParam("symbol", symbol).SetResult(&out).Get("/api/v1/ticker")
	if err := check(resp, err, "get ticker "+symbol); err != nil {
		return Ticker{}, err
	}

	return out, nil
}

// Markets returns every listed market with its filters.
func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	var out []Market

	resp, err := c.request(ctx).SetResult(&out).Get("/api/v1/markets")
	if err := check(resp, err, "get markets"); err != nil {
		return nil, err
	}

	return out, nil
}

// Positions returns the account's open positions.
func (c *Client) Positions(ctx context.Context) ([]PositionEntry, error) {
	req, err := c.signed(ctx, InstructionPositionQuery, map[string]string{})
	if err != nil {
		return nil, err
	}

	var out []PositionEntry

	resp, err := req.SetResult(&out).Get("/api/v1/position")
	if err := check(resp, err, "get positions"); err != nil {
		return nil, err
	}

	return out, nil
}

// ExecuteOrder submits an order and returns the venue's acknowledgment.
func (c *Client) ExecuteOrder(ctx context.Context, order OrderRequest) (OrderResponse, error) {
	req, err := c.signed(ctx, InstructionOrderExecute, orderParams(order))
	if err != nil {
		return OrderResponse{}, err
	}

	var out OrderResponse

	resp, err := req.SetBody(order).SetResult(&out).Post("/api/v1/order")
	if err := check(resp, err, "execute order on "+order.Symbol); err != nil {
		return OrderResponse{}, err
	}

	return out, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&ErrorResponse{})
}

func (c *Client) signed(ctx context.Context, instruction string, params map[string]string) (*resty.Request, error) {
	if !c.CanSign() {
		return nil, errors.New(errors.ErrCodeMissingCredentials, "signed venue request without api credentials")
	}

	ts := c.now().UnixMilli()

	return c.request(ctx).
		SetHeader(HeaderAPIKey, c.apiKey).
		SetHeader(HeaderSignature, c.signer.Sign(instruction, params, ts, c.windowMs)).
		SetHeader(HeaderTimestamp, strconv.FormatInt(ts, 10)).
		SetHeader(HeaderWindow, strconv.FormatInt(c.windowMs, 10)), nil
}

// check maps transport failures and error statuses to broker error kinds.
func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.Wrapf(errors.ErrCodeBrokerTimeout, err, "%s: timed out", op)
		}

		return errors.Wrapf(errors.ErrCodeBrokerRejected, err, "%s", op)
	}

	if resp.IsError() {
		msg := resp.String()
		if e, ok := resp.Error().(*ErrorResponse); ok && e.Message != "" {
			msg = e.Code + ": " + e.Message
		}

		return errors.Newf(errors.ErrCodeBrokerRejected, "%s: status %d: %s", op, resp.StatusCode(), msg)
	}

	return nil
}
