package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"rateguard/internal/app/policies"
	"rateguard/internal/domain/shared/daterange"
)

const apiKeyHeader = "X-Api-Key"

var (
	ErrNotConfigured = errors.New("pms: client not configured")
	ErrStatus        = errors.New("pms: unexpected status")
)

// Client talks to the channel manager's calendar API.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// NewClient builds a client limited to perSecond requests (unlimited when <= 0).
func NewClient(baseURL, apiKey string, timeout time.Duration, perSecond float64, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Limiter: limiter,
		Logger:  logger,
	}
}

type nightlyPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type calendarDay struct {
	Date  string          `json:"date"`
	Price decimal.Decimal `json:"price"`
}

type calendarResponse struct {
	ListingID string        `json:"listing_id"`
	Days      []calendarDay `json:"days"`
}

func (c *Client) SetNightlyPrice(ctx context.Context, listingID string, date time.Time, price decimal.Decimal) error {
	body, err := json.Marshal(nightlyPriceRequest{Price: price})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/listings/%s/calendar/%s", c.BaseURL, url.PathEscape(listingID), daterange.Key(date))
	resp, err := c.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		c.logError("pms price update failed", listingID, err)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) NightlyPrices(ctx context.Context, listingID string, cr daterange.CalendarRange) (map[string]decimal.Decimal, error) {
	query := url.Values{}
	query.Set("from", daterange.Key(cr.Start))
	query.Set("to", daterange.Key(cr.End))
	endpoint := fmt.Sprintf("%s/listings/%s/calendar?%s", c.BaseURL, url.PathEscape(listingID), query.Encode())
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logError("pms calendar read failed", listingID, err)
		return nil, err
	}
	defer resp.Body.Close()

	var payload calendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logError("pms calendar decode failed", listingID, err)
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(payload.Days))
	for _, day := range payload.Days {
		date, err := daterange.ParseDate(day.Date)
		if err != nil {
			return nil, fmt.Errorf("pms: calendar day %q: %w", day.Date, err)
		}
		out[daterange.Key(date)] = day.Price
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	if c == nil || c.HTTP == nil || c.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.APIKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return resp, nil
}

func (c *Client) logError(msg, listingID string, err error) {
	if c.Logger == nil {
		return
	}
	c.Logger.Error(msg, "listing_id", listingID, "error", err)
}

var _ policies.PMS = (*Client)(nil)
