// Package adapters declares the narrow capability interfaces
// activities use to reach external systems (email delivery, payment
// processing, DNS/TLS provisioning, vulnerability scanning, object
// storage), each wrapped in a per-dependency circuit breaker so one
// flaky external system cannot starve every activity worker waiting on
// it (spec §6 "external interfaces").
package adapters

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// breakerSettings returns a conservative per-adapter circuit breaker
// policy: trip after 3 consecutive failures within any 10s window,
// half-open after 30s, allow 2 probe requests while half-open.
func breakerSettings(name string, onStateChange func(name string, from, to gobreaker.State)) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: onStateChange,
	}
}

// StateChangeObserver is notified whenever an adapter's breaker
// transitions state, for telemetry.
type StateChangeObserver func(name string, from, to gobreaker.State)

// EmailSender delivers transactional email (tenant provisioning
// welcome mail, user onboarding verification mail).
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// PaymentProcessor charges or refunds a tenant's billing account
// (tenant provisioning's setup_tenant_billing activity and license
// provisioning's charge_for_license activity).
type PaymentProcessor interface {
	Charge(ctx context.Context, tenantID string, amountCents int64, currency, reference string) (string, error)
	Refund(ctx context.Context, chargeID string) error
}

// DNSSSLProvisioner provisions a tenant's custom domain and TLS
// certificate (tenant provisioning's provision_network activity).
type DNSSSLProvisioner interface {
	ProvisionDomain(ctx context.Context, tenantID, domain string) error
	ProvisionCertificate(ctx context.Context, tenantID, domain string) error
}

// Finding is one vulnerability reported by a scan.
type Finding struct {
	VulnerabilityID string
	Severity        string
	Description     string
}

// VulnerabilityScanner runs a security scan against a target and
// reports findings (the security_scan workflow's scan activity).
type VulnerabilityScanner interface {
	Scan(ctx context.Context, target string) ([]Finding, error)
}

// ObjectStore persists file bytes for the file_upload workflow; Size
// reports the bytes stored under a tenant prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Size(ctx context.Context, tenantPrefix string) (int64, error)
}
