package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// HTTPPaymentProcessor charges/refunds via a JSON HTTP payment API.
type HTTPPaymentProcessor struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPPaymentProcessor(endpoint string, client *http.Client, onStateChange StateChangeObserver) *HTTPPaymentProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPaymentProcessor{
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings("payment", onStateChange)),
	}
}

func (p *HTTPPaymentProcessor) Charge(ctx context.Context, tenantID string, amountCents int64, currency, reference string) (string, error) {
	v, err := p.breaker.Execute(func() (interface{}, error) {
		payload, merr := json.Marshal(map[string]interface{}{
			"tenant_id": tenantID, "amount_cents": amountCents, "currency": currency, "reference": reference,
		})
		if merr != nil {
			return nil, merr
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/charges", bytes.NewReader(payload))
		if rerr != nil {
			return nil, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		resp, derr := p.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("payment processor returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, cperrors.NewValidation("amount_cents", "charge rejected by processor")
		}
		var out struct {
			ChargeID string `json:"charge_id"`
		}
		if derr := json.NewDecoder(resp.Body).Decode(&out); derr != nil {
			return nil, derr
		}
		return out.ChargeID, nil
	})
	if err != nil {
		return "", cperrors.NewExternalService("payment", err.Error(), err, 0, 0)
	}
	return v.(string), nil
}

func (p *HTTPPaymentProcessor) Refund(ctx context.Context, chargeID string) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/charges/"+chargeID+"/refund", nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := p.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("refund rejected: status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return cperrors.NewExternalService("payment", err.Error(), err, 0, 0)
	}
	return nil
}

// InMemoryPaymentProcessor is a test double.
type InMemoryPaymentProcessor struct {
	Charges  map[string]int64
	Refunded map[string]bool
	nextID   int
	Err      error
}

func NewInMemoryPaymentProcessor() *InMemoryPaymentProcessor {
	return &InMemoryPaymentProcessor{Charges: map[string]int64{}, Refunded: map[string]bool{}}
}

func (m *InMemoryPaymentProcessor) Charge(ctx context.Context, tenantID string, amountCents int64, currency, reference string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.nextID++
	id := fmt.Sprintf("charge-%d", m.nextID)
	m.Charges[id] = amountCents
	return id, nil
}

func (m *InMemoryPaymentProcessor) Refund(ctx context.Context, chargeID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Refunded[chargeID] = true
	return nil
}
