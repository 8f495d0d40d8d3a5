package workflows_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/activity"
	"github.com/saastenant/orchestrator/internal/adapters"
	"github.com/saastenant/orchestrator/internal/bff"
	"github.com/saastenant/orchestrator/internal/cache"
	"github.com/saastenant/orchestrator/internal/engine"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/internal/workflow"
	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

// testRig bundles every in-memory double a workflow integration test
// might need, mirroring internal/wiring.Build's registration pattern
// with HTTP adapters swapped for the in-memory ones activities/*_test.go
// already uses.
type testRig struct {
	Store    *store.Store
	Mock     sqlmock.Sqlmock
	Objects  *adapters.InMemoryObjectStore
	Payments *adapters.InMemoryPaymentProcessor
	DNSSSL   *adapters.InMemoryDNSSSLProvisioner
	Email    *adapters.InMemoryEmailSender
	Scanner  *adapters.InMemoryVulnerabilityScanner
	Cache    cache.Store

	registry *activity.Registry
	Engine   *engine.Engine
	Client   *client.Client
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	s := store.New(sqlxDB)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	rig := &testRig{
		Store:    s,
		Mock:     mock,
		Objects:  adapters.NewInMemoryObjectStore(),
		Payments: adapters.NewInMemoryPaymentProcessor(),
		DNSSSL:   adapters.NewInMemoryDNSSSLProvisioner(),
		Email:    &adapters.InMemoryEmailSender{},
		Scanner:  &adapters.InMemoryVulnerabilityScanner{},
		Cache:    cache.NewRedisStore(redisClient),
		registry: activity.NewRegistry(),
	}

	activity.Register(rig.registry, activities.CreateSchema{Store: s})
	activity.Register(rig.registry, activities.ProvisionStorage{Objects: rig.Objects})
	activity.Register(rig.registry, activities.SetupMonitoring{})
	activity.Register(rig.registry, activities.ProvisionNetwork{DNSSSL: rig.DNSSSL})
	activity.Register(rig.registry, activities.EnableFeatures{Store: s})
	activity.Register(rig.registry, activities.SetupTenantBilling{Payments: rig.Payments})
	activity.Register(rig.registry, activities.ActivateTenant{Store: s})
	activity.Register(rig.registry, activities.NotifyProvisioned{Email: rig.Email})
	activity.Register(rig.registry, activities.CompensateStep{Audit: s})
	activity.Register(rig.registry, activities.DeactivateTenant{Store: s})

	activity.Register(rig.registry, activities.ValidateUpload{})
	activity.Register(rig.registry, activities.CreateFileMetadata{Store: s})
	activity.Register(rig.registry, activities.FinalizeUpload{Store: s, Objects: rig.Objects})
	activity.Register(rig.registry, activities.DeletePartialUpload{Store: s, Objects: rig.Objects})
	bffCache := bff.NewCache(rig.Cache)
	activity.Register(rig.registry, activities.InvalidateFileCache{Index: bff.NewIndex(rig.Cache, bffCache)})

	activity.Register(rig.registry, activities.ListRetentionPolicies{Store: s})
	activity.Register(rig.registry, activities.ListExpiredResources{Store: s})
	activity.Register(rig.registry, activities.PurgeResource{Store: s, Objects: rig.Objects})
	activity.Register(rig.registry, activities.ArchiveResource{Store: s})

	activity.Register(rig.registry, activities.ChargeForLicense{Payments: rig.Payments})
	activity.Register(rig.registry, activities.IssueLicense{Store: s})
	activity.Register(rig.registry, activities.ExpireLicenseActivity{Store: s})
	activity.Register(rig.registry, activities.ListExpiringLicenses{Store: s})

	activity.Register(rig.registry, activities.RegisterModuleInstall{Store: s})
	activity.Register(rig.registry, activities.CheckModuleEntitlement{})
	activity.Register(rig.registry, activities.InstallModule{Store: s})
	activity.Register(rig.registry, activities.FailModuleInstall{Store: s})

	activity.Register(rig.registry, activities.ValidateTenantSwitch{Store: s})
	activity.Register(rig.registry, activities.ReissueSession{Cache: rig.Cache})
	activity.Register(rig.registry, activities.RecordTenantSwitch{Audit: s})

	activity.Register(rig.registry, activities.StartScan{Store: s})
	activity.Register(rig.registry, activities.RunScan{Store: s, Scanner: rig.Scanner})
	activity.Register(rig.registry, activities.CompleteScan{Store: s})

	activity.Register(rig.registry, activities.ValidateRegistration{Store: s})
	activity.Register(rig.registry, activities.CreateDefaultTenant{Store: s})
	activity.Register(rig.registry, activities.CreateUserAccount{Store: s})
	activity.Register(rig.registry, activities.SendVerificationEmail{Store: s, Email: rig.Email})

	eng := engine.NewEngine(rig.registry,
		engine.WithLogger(zap.NewNop()),
		engine.WithMaxConcurrentActivities(10),
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

	rig.Engine = eng
	rig.Client = client.New(eng)
	return rig
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

func testTenantContext(tenantID string) tenant.Context {
	return tenant.Context{
		Tenant: tenant.TenantContext{TenantID: tenantID, TenantName: "Acme", IsActive: true},
		User:   tenant.UserContext{UserID: "u1"},
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
