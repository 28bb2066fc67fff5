package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"placemats-be/internal/logger"

	"go.uber.org/zap"
)

const (
	stripeBaseURL = "https://api.stripe.com"

	// Webhook timestamps older than this are rejected to limit replay.
	signatureTolerance = 5 * time.Minute
)

type stripeGateway struct {
	apiKey        string
	webhookSecret string
	frontendURL   string

	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// ----------------- Constructor -----------------

func NewStripeGateway(apiKey, webhookSecret, frontendURL string) Gateway {
	if apiKey == "" {
		logger.L().Warn("Stripe API key is empty")
	}
	if webhookSecret == "" {
		logger.L().Warn("Stripe webhook secret is empty, all webhook deliveries will be rejected")
	}

	return &stripeGateway{
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		frontendURL:   frontendURL,
		baseURL:       stripeBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// stripeSession is the subset of Stripe's checkout session object we use.
type stripeSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	PaymentStatus string `json:"payment_status"`
	CustomerEmail string `json:"customer_email"`
}

// ----------------- CreateCheckoutSession -----------------

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("order_id", req.OrderID),
		zap.Int("line_items", len(req.LineItems)),
	)

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("customer_email", req.CustomerEmail)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("metadata[customer_name]", req.CustomerName)
	// Session metadata does not propagate to the payment intent; set it
	// there too so payment_intent.* events can be correlated on their own.
	form.Set("payment_intent_data[metadata][order_id]", req.OrderID)
	form.Set("success_url", g.frontendURL+"/PaymentSuccess?session_id={CHECKOUT_SESSION_ID}")
	form.Set("cancel_url", g.frontendURL+"/PaymentCancel")

	for i, li := range req.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", "gbp")
		form.Set(prefix+"[price_data][product_data][name]", li.Name)
		if li.Description != "" {
			form.Set(prefix+"[price_data][product_data][description]", li.Description)
		}
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(li.UnitAmount, 10))
		form.Set(prefix+"[quantity]", strconv.Itoa(li.Quantity))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		g.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		log.Error("Failed creating request", zap.Error(err))
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	log.Info("Creating Stripe checkout session")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Stripe request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Stripe returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("stripe error: %s", string(bodyBytes))
	}

	var res stripeSession
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding Stripe response", zap.Error(err))
		return nil, err
	}

	log.Info("Stripe checkout session created",
		zap.String("session_id", res.ID),
		zap.String("payment_status", res.PaymentStatus),
	)

	return &Session{
		ID:              res.ID,
		URL:             res.URL,
		PaymentIntentID: res.PaymentIntent,
		PaymentStatus:   res.PaymentStatus,
		CustomerEmail:   res.CustomerEmail,
	}, nil
}

// ----------------- GetSession -----------------

func (g *stripeGateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	log := logger.FromCtx(ctx).With(zap.String("session_id", sessionID))

	httpReq, err := http.NewRequestWithContext(ctx, "GET",
		g.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		log.Error("Failed building request", zap.Error(err))
		return nil, err
	}

	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		log.Error("Request to Stripe failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("Failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("Stripe returned error",
			zap.Int("http_status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("stripe error: %s", string(bodyBytes))
	}

	var res stripeSession
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("Failed decoding session", zap.Error(err))
		return nil, err
	}

	return &Session{
		ID:              res.ID,
		URL:             res.URL,
		PaymentIntentID: res.PaymentIntent,
		PaymentStatus:   res.PaymentStatus,
		CustomerEmail:   res.CustomerEmail,
	}, nil
}

// ----------------- Verify Signature -----------------

// VerifySignature checks a Stripe-Signature header (t=<unix>,v1=<hmac-hex>)
// against HMAC-SHA256 of "<t>.<payload>" with the endpoint secret. The
// payload must be the raw request body; a re-serialized body would not
// verify. A missing secret fails closed: nothing can be authenticated
// without it.
func (g *stripeGateway) VerifySignature(header string, payload []byte) error {
	if g.webhookSecret == "" {
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}

	var timestamp string
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			candidates = append(candidates, v)
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed timestamp", ErrInvalidSignature)
	}

	age := g.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		got, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, got) {
			return nil
		}
	}

	return ErrInvalidSignature
}
