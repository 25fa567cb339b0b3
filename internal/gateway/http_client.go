package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// HTTPClient talks to the hosted-checkout provider over its form-encoded
// REST API. Every call goes through a circuit breaker so a flapping
// provider fails fast instead of piling up blocked requests.
type HTTPClient struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*apiResponse]
}

type apiResponse struct {
	status int
	body   []byte
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
	}
}

type sessionPayload struct {
	ID            string            `json:"id"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

type errorPayload struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) CreateSession(ctx context.Context, params *CreateSessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)

	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", "usd")
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[price_data][product_data][images][0]", item.ImageURL)
		form.Set(prefix+"[quantity]", strconv.FormatInt(int64(item.Quantity), 10))
	}

	if params.DiscountID != "" {
		form.Set("discounts[0][coupon]", params.DiscountID)
	}

	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form)
	if err != nil {
		return nil, err
	}
	return decodeSession(body)
}

func (c *HTTPClient) CreatePercentageDiscount(ctx context.Context, percent int) (string, error) {
	form := url.Values{}
	form.Set("percent_off", strconv.Itoa(percent))
	form.Set("duration", "once")

	body, err := c.do(ctx, http.MethodPost, "/v1/coupons", form)
	if err != nil {
		return "", err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode discount response: %w", err)
	}
	return payload.ID, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, id string) (*Session, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeSession(body)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		var reqBody io.Reader
		if form != nil {
			reqBody = strings.NewReader(form.Encode())
		}

		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		httpResp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, err
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("gateway returned %d", httpResp.StatusCode)
		}
		return &apiResponse{status: httpResp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.status >= http.StatusBadRequest {
		var payload errorPayload
		_ = json.Unmarshal(resp.body, &payload)
		if payload.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, payload.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.status)
	}

	return resp.body, nil
}

func decodeSession(body []byte) (*Session, error) {
	var payload sessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	return &Session{
		ID:            payload.ID,
		PaymentStatus: PaymentStatus(payload.PaymentStatus),
		AmountTotal:   payload.AmountTotal,
		Metadata:      payload.Metadata,
	}, nil
}
