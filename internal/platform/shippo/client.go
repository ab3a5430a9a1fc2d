package shippo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/ctxutil"
	"github.com/yungbote/marketplace-backend/internal/platform/httpx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type Client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Client{
		log:        log.With("client", "ShippoClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}, nil
}

// Ping lists carrier accounts to confirm the provider is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.doOnce(ctx, http.MethodGet, "/carrier_accounts?results=1", nil)
	return err
}

func (c *Client) CreateShipment(ctx context.Context, from, to domain.Address, parcel Parcel) (*Shipment, error) {
	req := shipmentRequest{
		AddressFrom: toWireAddress(from),
		AddressTo:   toWireAddress(to),
		Parcels:     []wireParcel{toWireParcel(parcel)},
		Async:       false,
	}
	_, raw, err := c.do(ctx, http.MethodPost, "/shipments/", req)
	if err != nil {
		return nil, err
	}
	var resp shipmentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("shippo: decode shipment: %w", err)
	}
	out := &Shipment{ID: resp.ObjectID}
	for _, r := range resp.Rates {
		amt, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
		if err != nil {
			c.log.Warn("skipping rate with unparseable amount", "rate", r.ObjectID, "amount", r.Amount)
			continue
		}
		if cur := strings.ToLower(strings.TrimSpace(r.Currency)); cur != "" && cur != domain.Currency {
			continue
		}
		out.Rates = append(out.Rates, Rate{
			ID:            r.ObjectID,
			Provider:      r.Provider,
			ServiceName:   r.ServiceLevel.Name,
			ServiceToken:  r.ServiceLevel.Token,
			Amount:        domain.CentsFromDecimal(amt),
			Currency:      strings.ToLower(r.Currency),
			EstimatedDays: r.EstimatedDays,
		})
	}
	if len(out.Rates) == 0 && len(resp.Messages) > 0 {
		c.log.Info("shipment returned no rates", "shipment", resp.ObjectID, "messages", joinMessages(resp.Messages))
	}
	return out, nil
}

// LabelError is a label purchase the provider answered but refused.
type LabelError struct {
	TransactionID string
	Status        string
	Message       string
}

func (e *LabelError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "label purchase failed"
	}
	return fmt.Sprintf("shippo transaction %s: %s", strings.ToLower(e.Status), msg)
}

func (c *Client) PurchaseLabel(ctx context.Context, rateID string) (*Label, error) {
	if strings.TrimSpace(rateID) == "" {
		return nil, fmt.Errorf("shippo: rate id required")
	}
	// Transactions are not idempotent; a retried POST could buy a second label.
	_, raw, err := c.doOnce(ctx, http.MethodPost, "/transactions/", transactionRequest{
		Rate:          rateID,
		LabelFileType: "PDF",
		Async:         false,
	})
	if err != nil {
		return nil, err
	}
	var resp transactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("shippo: decode transaction: %w", err)
	}
	if !strings.EqualFold(resp.Status, "SUCCESS") {
		return nil, &LabelError{TransactionID: resp.ObjectID, Status: resp.Status, Message: joinMessages(resp.Messages)}
	}
	return &Label{
		TransactionID:  resp.ObjectID,
		RateID:         resp.Rate,
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
		ETA:            resp.ETA,
	}, nil
}

// DownloadLabel fetches the label document from the URL the provider returned.
func (c *Client) DownloadLabel(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

// ---------- HTTP / retry helpers ----------

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "shippo: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("shippo http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			return resp, raw, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, nil, err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("Shippo request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return nil, nil, err
		}
		backoff *= 2
	}

	return nil, nil, errors.New("unreachable retry loop")
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	ctx = ctxutil.Default(ctx)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
		rdr = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "ShippoToken "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
