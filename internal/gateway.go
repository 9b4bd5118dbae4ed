package internal

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"paybox/entity"
	"paybox/services"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	recurringPaymentPath = "make_recurring_payment.php"
	cancelTokenPath      = "subscriptions/%s/cancel"
	apiVersion           = "v1"
	defaultTimeout       = 15 * time.Second
	redirectPrefix       = "https://"
	redirectEnd          = "</"
)

// Gateway is the authenticated channel to the processor API. Calls are
// synchronous and bounded by the configured timeout.
type Gateway struct {
	conf       entity.MerchantConfig
	signer     *Signer
	baseUrl    string
	timeout    time.Duration
	httpClient *http.Client
	logger     services.LogHandler
}

func NewGateway(conf entity.MerchantConfig, signer *Signer) *Gateway {
	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{
		conf:    conf,
		signer:  signer,
		baseUrl: "https://" + strings.TrimRight(conf.ApiHost, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (g *Gateway) SetLogger(logger services.LogHandler) {
	g.logger = logger
}

// SetBaseUrl points the client to another API root, e.g. a test server.
func (g *Gateway) SetBaseUrl(baseUrl string) {
	g.baseUrl = strings.TrimRight(baseUrl, "/")
}

// Initiate posts the payment request and returns the hosted payment page URL.
func (g *Gateway) Initiate(ctx context.Context, payload entity.Params) (string, error) {
	body, err := payload.JSON()
	if err != nil {
		return "", fmt.Errorf("encode payment request: %w", err)
	}
	g.logger.Debug(fmt.Sprintf("init payment request: %s", string(body)))

	response, err := g.send(ctx, http.MethodPost, initPaymentPath, body, nil)
	if err != nil {
		return "", err
	}
	return extractRedirect(response)
}

// CancelToken cancels a recurring profile. Headers are signed with the
// sorted canonical form.
func (g *Gateway) CancelToken(ctx context.Context, token string) error {
	headers := entity.Params{
		{Key: "merchant-id", Value: strconv.Itoa(g.conf.MerchantId)},
		{Key: "version", Value: apiVersion},
		{Key: "timestamp", Value: time.Now().UTC().Format(time.RFC3339)},
	}
	signature := md5Hex(g.signer.Canonicalize(headers, true, true))
	headers.Add(signatureKey, signature)

	values := make(map[string]string, len(headers))
	for _, header := range headers {
		values[header.Key] = entity.FormatValue(header.Value)
	}

	response, err := g.send(ctx, http.MethodPut, fmt.Sprintf(cancelTokenPath, token), nil, values)
	if err != nil {
		return fmt.Errorf("cancel token %s: %w", secret(token), err)
	}
	g.logger.Info(fmt.Sprintf("token %s cancelled: %s", secret(token), strings.TrimSpace(string(response))))
	return nil
}

// ChargeToken charges a stored recurring profile for an order.
func (g *Gateway) ChargeToken(ctx context.Context, orderId, token string, amount decimal.Decimal, description string) (*entity.ChargeResult, error) {
	params := entity.Params{
		{Key: "pg_merchant_id", Value: g.conf.MerchantId},
		{Key: "pg_recurring_profile", Value: token},
		{Key: "pg_description", Value: description},
		{Key: "pg_order_id", Value: orderId},
		{Key: "pg_amount", Value: amount},
		{Key: "pg_result_url", Value: g.conf.ResultUrl},
		{Key: "pg_salt", Value: strconv.FormatInt(time.Now().UnixNano(), 36)},
	}
	params.Add("pg_sig", g.signer.Sign(recurringPaymentPath, params))

	body, err := params.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode recurring payment: %w", err)
	}
	response, err := g.send(ctx, http.MethodPost, recurringPaymentPath, body, nil)
	if err != nil {
		return nil, err
	}

	var result entity.ChargeResult
	if err = xml.Unmarshal(response, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamMalformedResponse, err)
	}
	g.logger.Info(fmt.Sprintf("recurring payment: order %s; status %s; payment %s", orderId, result.Status, result.PaymentId))
	return &result, nil
}

func (g *Gateway) send(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, g.baseUrl+"/"+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	response, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func(Body io.ReadCloser) {
		if e := Body.Close(); e != nil {
			g.logger.Error("close response body", e)
		}
	}(response.Body)

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrUpstreamUnavailable, err)
	}
	if response.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, response.StatusCode)
	}
	if method != http.MethodPost && response.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamMalformedResponse, response.StatusCode)
	}
	return data, nil
}

// extractRedirect scans the response for the first https URL, up to the
// next "</" or the end of the body.
func extractRedirect(body []byte) (string, error) {
	text := string(body)
	start := strings.Index(text, redirectPrefix)
	if start < 0 {
		return "", fmt.Errorf("%w: no payment url in %d bytes", ErrUpstreamMalformedResponse, len(body))
	}
	text = text[start:]
	if end := strings.Index(text, redirectEnd); end >= 0 {
		return text[:end], nil
	}
	return strings.TrimSpace(text), nil
}
