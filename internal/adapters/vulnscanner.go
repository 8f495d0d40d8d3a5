package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// HTTPVulnerabilityScanner submits a scan target to an external
// scanning service and returns its findings.
type HTTPVulnerabilityScanner struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPVulnerabilityScanner(endpoint string, client *http.Client, onStateChange StateChangeObserver) *HTTPVulnerabilityScanner {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPVulnerabilityScanner{
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings("vuln_scanner", onStateChange)),
	}
}

func (s *HTTPVulnerabilityScanner) Scan(ctx context.Context, target string) ([]Finding, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/scan?target="+target, nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := s.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("scan request failed: status %d", resp.StatusCode)
		}
		var findings []Finding
		if derr := json.NewDecoder(resp.Body).Decode(&findings); derr != nil {
			return nil, derr
		}
		return findings, nil
	})
	if err != nil {
		return nil, cperrors.NewExternalService("vuln_scanner", err.Error(), err, 0, 0)
	}
	return v.([]Finding), nil
}

// InMemoryVulnerabilityScanner is a test double returning canned findings.
type InMemoryVulnerabilityScanner struct {
	Findings []Finding
	Err      error
}

func (m *InMemoryVulnerabilityScanner) Scan(ctx context.Context, target string) ([]Finding, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Findings, nil
}
