package adapters

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// HTTPDNSSSLProvisioner provisions tenant domains/certificates via an
// HTTP registrar/ACME-fronting API.
type HTTPDNSSSLProvisioner struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewHTTPDNSSSLProvisioner(endpoint string, client *http.Client, onStateChange StateChangeObserver) *HTTPDNSSSLProvisioner {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDNSSSLProvisioner{
		endpoint: endpoint,
		client:   client,
		breaker:  gobreaker.NewCircuitBreaker(breakerSettings("dns_ssl", onStateChange)),
	}
}

func (p *HTTPDNSSSLProvisioner) ProvisionDomain(ctx context.Context, tenantID, domain string) error {
	return p.call(ctx, fmt.Sprintf("/domains/%s?tenant_id=%s", domain, tenantID))
}

func (p *HTTPDNSSSLProvisioner) ProvisionCertificate(ctx context.Context, tenantID, domain string) error {
	return p.call(ctx, fmt.Sprintf("/certificates/%s?tenant_id=%s", domain, tenantID))
}

func (p *HTTPDNSSSLProvisioner) call(ctx context.Context, path string) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPut, p.endpoint+path, nil)
		if rerr != nil {
			return nil, rerr
		}
		resp, derr := p.client.Do(req)
		if derr != nil {
			return nil, derr
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("provisioning failed: status %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err != nil {
		return cperrors.NewExternalService("dns_ssl", err.Error(), err, 0, 0)
	}
	return nil
}

// InMemoryDNSSSLProvisioner is a test double.
type InMemoryDNSSSLProvisioner struct {
	Domains      map[string]bool
	Certificates map[string]bool
	Err          error
}

func NewInMemoryDNSSSLProvisioner() *InMemoryDNSSSLProvisioner {
	return &InMemoryDNSSSLProvisioner{Domains: map[string]bool{}, Certificates: map[string]bool{}}
}

func (m *InMemoryDNSSSLProvisioner) ProvisionDomain(ctx context.Context, tenantID, domain string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Domains[domain] = true
	return nil
}

func (m *InMemoryDNSSSLProvisioner) ProvisionCertificate(ctx context.Context, tenantID, domain string) error {
	if m.Err != nil {
		return m.Err
	}
	m.Certificates[domain] = true
	return nil
}
