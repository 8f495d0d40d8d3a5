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

// HTTPEmailSender delivers mail via a JSON HTTP API (e.g. a
// transactional-email provider's send endpoint), wrapped in a circuit
// breaker so a provider outage fails fast instead of stacking up
// blocked activity goroutines.
type HTTPEmailSender struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPEmailSender(endpoint string, client *http.Client, onStateChange StateChangeObserver) *HTTPEmailSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEmailSender{
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings("email", onStateChange)),
	}
}

func (s *HTTPEmailSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		payload, merr := json.Marshal(map[string]string{"to": to, "subject": subject, "body": body})
		if merr != nil {
			return nil, merr
		}
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if rerr != nil {
			return nil, rerr
		}
		req.Header.Set("Content-Type", "application/json")
		resp, derr := s.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("email provider returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, cperrors.NewValidation("to", "email rejected by provider")
		}
		return nil, nil
	})
	if err != nil {
		return cperrors.NewExternalService("email", err.Error(), err, 0, 0)
	}
	return nil
}

// InMemoryEmailSender is a test double recording every send.
type InMemoryEmailSender struct {
	Sent []struct{ To, Subject, Body string }
	Err  error
}

func (m *InMemoryEmailSender) Send(ctx context.Context, to, subject, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, struct{ To, Subject, Body string }{to, subject, body})
	return nil
}
