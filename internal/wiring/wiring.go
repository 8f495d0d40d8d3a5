// Package wiring builds the fully-registered engine (every activity
// and workflow type bound to their concrete dependencies) shared by
// cmd/orchestrator-worker and cmd/bff-gateway. The in-memory driver
// (internal/engine) keeps all execution state in process memory, so
// the two binaries cannot literally share one running engine across
// OS processes; until a networked durable engine is wired in (out of
// scope, spec §1), both processes build an identical engine from this
// one constructor against the same Postgres/Redis so their view of
// tenant/license/module state agrees even though in-flight workflow
// runs do not migrate between them.
package wiring

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	"github.com/saastenant/orchestrator/internal/bff"
	"github.com/saastenant/orchestrator/internal/cache"
	"github.com/saastenant/orchestrator/internal/config"
	"github.com/saastenant/orchestrator/internal/engine"
	"github.com/saastenant/orchestrator/internal/quota"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/telemetry"
	"github.com/saastenant/orchestrator/internal/workflow"
	"github.com/saastenant/orchestrator/workflows"
)

// Deps are the shared, already-opened resources both entrypoints build
// before calling Build: a process's config, logger, metrics, store
// connection and cache client.
type Deps struct {
	Cfg     config.Config
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
	Store   *store.Store
	Cache   cache.Store
}

// Built is everything a caller needs after wiring: the engine itself,
// the BFF composition helpers that read through the same cache, and
// the quota checker (also needed directly by the gateway's upload
// validation error messages).
type Built struct {
	Engine       *engine.Engine
	Index        *bff.Index
	Cache        *bff.Cache
	Aggregator   *bff.Aggregator
	QuotaChecker *quota.ActivityChecker
}

// Build registers every activity and workflow type from activities/
// and workflows/ against a fresh engine backed by d's resources.
func Build(d Deps) *Built {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	onBreakerChange := func(name string, from, to gobreaker.State) {
		d.Logger.Warn("circuit breaker state change",
			zap.String("adapter", name), zap.String("from", from.String()), zap.String("to", to.String()))
	}

	emailAdapter := adapters.NewHTTPEmailSender(d.Cfg.EmailEndpoint, httpClient, onBreakerChange)
	paymentAdapter := adapters.NewHTTPPaymentProcessor(d.Cfg.PaymentEndpoint, httpClient, onBreakerChange)
	dnsSSLAdapter := adapters.NewHTTPDNSSSLProvisioner(d.Cfg.DNSSSLEndpoint, httpClient, onBreakerChange)
	scannerAdapter := adapters.NewHTTPVulnerabilityScanner(d.Cfg.ScannerEndpoint, httpClient, onBreakerChange)
	objectStoreAdapter := adapters.NewHTTPObjectStore(d.Cfg.ObjectStoreEndpoint, httpClient, onBreakerChange)

	enforcer := quota.NewEnforcer(d.Cache, func(ctx context.Context, severity, tenantID, resourceType string, current, limit int64) {
		d.Metrics.RecordQuotaCompliance(ctx, severity, tenantID, resourceType, current, limit)
	})
	quotaChecker := quota.NewActivityChecker(enforcer, d.Store.TenantQuota)

	bffCache := bff.NewCache(d.Cache)
	index := bff.NewIndex(d.Cache, bffCache)

	registry := activity.NewRegistry()

	activity.Register(registry, activities.CreateSchema{Store: d.Store})
	activity.Register(registry, activities.ProvisionStorage{Objects: objectStoreAdapter})
	activity.Register(registry, activities.SetupMonitoring{Metrics: d.Metrics})
	activity.Register(registry, activities.ProvisionNetwork{DNSSSL: dnsSSLAdapter})
	activity.Register(registry, activities.EnableFeatures{Store: d.Store})
	activity.Register(registry, activities.SetupTenantBilling{Payments: paymentAdapter})
	activity.Register(registry, activities.ActivateTenant{Store: d.Store})
	activity.Register(registry, activities.NotifyProvisioned{Email: emailAdapter})
	activity.Register(registry, activities.CompensateStep{Audit: d.Store})
	activity.Register(registry, activities.DeactivateTenant{Store: d.Store})

	activity.Register(registry, activities.ValidateUpload{Quotas: quotaChecker})
	activity.Register(registry, activities.CreateFileMetadata{Store: d.Store})
	activity.Register(registry, activities.FinalizeUpload{Store: d.Store, Objects: objectStoreAdapter})
	activity.Register(registry, activities.DeletePartialUpload{Store: d.Store, Objects: objectStoreAdapter})
	activity.Register(registry, activities.InvalidateFileCache{Index: index})

	activity.Register(registry, activities.ListRetentionPolicies{Store: d.Store})
	activity.Register(registry, activities.ListExpiredResources{Store: d.Store})
	activity.Register(registry, activities.PurgeResource{Store: d.Store, Objects: objectStoreAdapter})
	activity.Register(registry, activities.ArchiveResource{Store: d.Store})

	activity.Register(registry, activities.ChargeForLicense{Payments: paymentAdapter})
	activity.Register(registry, activities.IssueLicense{Store: d.Store})
	activity.Register(registry, activities.ExpireLicenseActivity{Store: d.Store})
	activity.Register(registry, activities.ListExpiringLicenses{Store: d.Store})

	activity.Register(registry, activities.RegisterModuleInstall{Store: d.Store})
	activity.Register(registry, activities.CheckModuleEntitlement{})
	activity.Register(registry, activities.InstallModule{Store: d.Store})
	activity.Register(registry, activities.FailModuleInstall{Store: d.Store})

	activity.Register(registry, activities.ValidateTenantSwitch{Store: d.Store})
	activity.Register(registry, activities.ReissueSession{Cache: d.Cache})
	activity.Register(registry, activities.RecordTenantSwitch{Audit: d.Store})

	activity.Register(registry, activities.StartScan{Store: d.Store})
	activity.Register(registry, activities.RunScan{Store: d.Store, Scanner: scannerAdapter})
	activity.Register(registry, activities.CompleteScan{Store: d.Store})

	activity.Register(registry, activities.ValidateRegistration{Store: d.Store})
	activity.Register(registry, activities.CreateDefaultTenant{Store: d.Store})
	activity.Register(registry, activities.CreateUserAccount{Store: d.Store, Quotas: quotaChecker})
	activity.Register(registry, activities.SendVerificationEmail{Store: d.Store, Email: emailAdapter})

	eng := engine.NewEngine(registry,
		engine.WithLogger(d.Logger),
		engine.WithQuotaChecker(quotaChecker),
		engine.WithMaxConcurrentActivities(d.Cfg.MaxConcurrentActivities),
	)

	registerWorkflow(eng, workflows.TenantProvisioning{})
	registerWorkflow(eng, workflows.UserOnboarding{})
	registerWorkflow(eng, workflows.FileUpload{})
	registerWorkflow(eng, workflows.DataRetentionSweep{})
	registerWorkflow(eng, workflows.LicenseProvisioning{})
	registerWorkflow(eng, workflows.BillingSetup{})
	registerWorkflow(eng, workflows.LicenseExpiryScan{})
	registerWorkflow(eng, workflows.ModuleInstallation{})
	registerWorkflow(eng, workflows.TenantSwitch{})
	registerWorkflow(eng, workflows.SecurityScan{})

	return &Built{
		Engine:       eng,
		Index:        index,
		Cache:        bffCache,
		Aggregator:   bff.NewAggregator(),
		QuotaChecker: quotaChecker,
	}
}

func registerWorkflow[I any, R any](eng *engine.Engine, w workflow.Workflow[I, R]) {
	invoke, version, signals, queries := workflow.Build(w)
	eng.RegisterWorkflow(w.Name(), engine.WorkflowRegistration{
		Version:        version,
		Invoke:         invoke,
		SignalHandlers: signals,
		QueryHandlers:  queries,
	})
}
