// Package stripe adapts Stripe webhook payloads into provider-neutral
// payment events.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/prompthive/costlens/internal/payment/domain"
)

// signatureTolerance bounds how old a signed payload may be before it
// is rejected as a replay.
const signatureTolerance = 5 * time.Minute

type Adapter struct {
	webhookSecret string
	now           func() time.Time
}

func NewAdapter(webhookSecret string) *Adapter {
	return &Adapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		now:           time.Now,
	}
}

func (a *Adapter) Provider() string {
	return "stripe"
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrProviderDisabled
	}

	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event)
	case "invoice.paid":
		return a.parseInvoice(event, paymentdomain.EventTypeInvoicePaid)
	case "invoice.payment_failed":
		return a.parseInvoice(event, paymentdomain.EventTypePaymentFailed)
	case "customer.subscription.updated":
		return a.parseSubscription(event, paymentdomain.EventTypeSubscriptionUpdated)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, paymentdomain.EventTypeSubscriptionCanceled)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (a *Adapter) parseCheckoutSession(event stripeEvent) (*paymentdomain.PaymentEvent, error) {
	var session struct {
		ID           string            `json:"id"`
		Customer     string            `json:"customer"`
		Subscription string            `json:"subscription"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(session.Metadata["user_id"]))
	if err != nil {
		return nil, paymentdomain.ErrInvalidEvent
	}

	// Sessions carry either a plan upgrade or a one-time credit pack.
	planType := strings.TrimSpace(session.Metadata["plan_type"])
	var credits int64
	if raw := strings.TrimSpace(session.Metadata["credits"]); raw != "" {
		credits, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || credits <= 0 {
			return nil, paymentdomain.ErrInvalidEvent
		}
	}
	if planType == "" && credits == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.PaymentEvent{
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeCheckoutCompleted,
		CustomerID:      session.Customer,
		SubscriptionID:  session.Subscription,
		UserID:          userID,
		PlanType:        planType,
		Credits:         credits,
	}, nil
}

func (a *Adapter) parseInvoice(event stripeEvent, eventType paymentdomain.EventType) (*paymentdomain.PaymentEvent, error) {
	var invoice struct {
		Customer     string `json:"customer"`
		Subscription string `json:"subscription"`
		PeriodEnd    int64  `json:"period_end"`
		Lines        struct {
			Data []struct {
				Period struct {
					End int64 `json:"end"`
				} `json:"period"`
			} `json:"data"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.Subscription) == "" {
		return nil, paymentdomain.ErrEventIgnored
	}

	// Line periods cover the paid service window; the invoice-level
	// period only covers the invoicing run.
	periodEnd := invoice.PeriodEnd
	for _, line := range invoice.Lines.Data {
		if line.Period.End > periodEnd {
			periodEnd = line.Period.End
		}
	}

	parsed := &paymentdomain.PaymentEvent{
		ProviderEventID: event.ID,
		Type:            eventType,
		CustomerID:      invoice.Customer,
		SubscriptionID:  invoice.Subscription,
	}
	if periodEnd > 0 {
		parsed.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	return parsed, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, eventType paymentdomain.EventType) (*paymentdomain.PaymentEvent, error) {
	var sub struct {
		ID                string `json:"id"`
		Customer          string `json:"customer"`
		CurrentPeriodEnd  int64  `json:"current_period_end"`
		CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	}
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	parsed := &paymentdomain.PaymentEvent{
		ProviderEventID:   event.ID,
		Type:              eventType,
		CustomerID:        sub.Customer,
		SubscriptionID:    sub.ID,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodEnd > 0 {
		parsed.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return parsed, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}
