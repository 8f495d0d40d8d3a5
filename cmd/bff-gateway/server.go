package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saastenant/orchestrator/internal/bff"
	"github.com/saastenant/orchestrator/internal/config"
	"github.com/saastenant/orchestrator/internal/engine"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/store"
	"github.com/saastenant/orchestrator/internal/telemetry"
	"github.com/saastenant/orchestrator/internal/tenant"
	"github.com/saastenant/orchestrator/pkg/client"
	"github.com/saastenant/orchestrator/workflows"
)

type server struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *telemetry.Metrics
	store   *store.Store
	auth    tenant.Authenticator
	resolve tenant.DefaultTenantResolver
	client  *client.Client
	driver  engine.Driver
	bcache  *bff.Cache
	index   *bff.Index
	agg     *bff.Aggregator
}

type ctxKey int

const tenantCtxKey ctxKey = iota

func tenantFromContext(ctx context.Context) tenant.Context {
	tc, _ := ctx.Value(tenantCtxKey).(tenant.Context)
	return tc
}

// authMiddleware authenticates the bearer token, resolves the active
// tenant (spec §4.A resolution order), validates the resulting
// envelope, and stores it on the request context for every downstream
// handler.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.Authenticate(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tc, err := s.resolve.Resolve(r, user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		full := tenant.Context{Tenant: tc, User: user, CorrelationID: middleware.GetReqID(r.Context())}
		if err := full.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), tenantCtxKey, full)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Tenant-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	// Tenant provisioning bootstraps identity itself, so it runs ahead
	// of the tenant-resolution middleware (there is no tenant yet).
	r.Post("/tenants", s.handleProvisionTenant)

	// Registration bootstraps identity itself too: the caller has
	// neither an account nor a bearer token yet.
	r.Post("/register", s.handleRegisterUser)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/uploads", s.handleStartUpload)
		r.Get("/uploads/{fileID}", s.handleUploadProgress)

		r.Post("/tenant-switch", s.handleTenantSwitch)

		r.Post("/modules/install", s.handleInstallModule)

		r.Post("/licenses", s.handleProvisionLicense)

		r.Post("/security-scans", s.handleStartSecurityScan)
		r.Get("/security-scans/{scanID}/progress", s.handleSecurityScanProgress)

		r.Get("/workflows/{workflowID}", s.handleDescribeWorkflow)
		r.Post("/workflows/{workflowID}/signal/{name}", s.handleSignalWorkflow)
		r.Post("/workflows/bulk", s.handleBulkOperation)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the control plane's typed error taxonomy onto HTTP
// status codes (spec §6). Codes absent from the switch (e.g. a bare
// driver error) fall through to 500, matching the teacher's
// fail-closed default for unclassified errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch cperrors.CodeOf(err) {
	case cperrors.CodeValidation, cperrors.CodeTenantValidation:
		status = http.StatusBadRequest
	case cperrors.CodeAuthentication:
		status = http.StatusUnauthorized
	case cperrors.CodeAuthorization:
		status = http.StatusForbidden
	case cperrors.CodeNotFound:
		status = http.StatusNotFound
	case cperrors.CodeConflict:
		status = http.StatusConflict
	case cperrors.CodeRateLimit, cperrors.CodeQuotaExceeded:
		status = http.StatusTooManyRequests
	case cperrors.CodeTimeout:
		status = http.StatusGatewayTimeout
	case cperrors.CodeExternalService:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error":          err.Error(),
		"code":           string(cperrors.CodeOf(err)),
		"correlation_id": middleware.GetReqID(r.Context()),
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cperrors.NewValidation("body", "request body is not valid JSON")
	}
	return nil
}

// handleProvisionTenant starts tenant_provisioning. The caller is not
// yet a tenant member, so this endpoint only requires a valid bearer
// token, not a resolved tenant context.
func (s *server) handleProvisionTenant(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in workflows.TenantProvisioningInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	tc := tenant.Context{User: user, CorrelationID: middleware.GetReqID(r.Context())}
	run, err := client.Start(r.Context(), s.client, "tenant_provisioning",
		client.StartOptions{WorkflowID: "tenant-provisioning-" + uuid.NewString(), CorrelationID: tc.CorrelationID},
		tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": run.ID(), "run_id": run.RunID()})
}

// handleRegisterUser starts user_onboarding. Like tenant provisioning,
// the caller has no account yet, so this runs ahead of both
// authentication and tenant resolution.
func (s *server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var in workflows.UserOnboardingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	tc := tenant.Context{CorrelationID: middleware.GetReqID(r.Context())}
	run, err := client.Start(r.Context(), s.client, "user_onboarding",
		client.StartOptions{WorkflowID: "user-onboarding-" + uuid.NewString(), CorrelationID: tc.CorrelationID},
		tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := client.Get[workflows.UserOnboardingResult](r.Context(), run)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *server) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromContext(r.Context())
	var in workflows.FileUploadInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.TenantID = tc.Tenant.TenantID

	run, err := client.Start(r.Context(), s.client, "file_upload",
		client.StartOptions{WorkflowID: "upload-" + uuid.NewString(), CorrelationID: tc.CorrelationID}, tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": run.ID(), "run_id": run.RunID()})
}

// handleUploadProgress aggregates the upload's workflow status behind
// the short-TTL upload_progress route kind, so repeated client polling
// doesn't re-describe the same execution on every request.
func (s *server) handleUploadProgress(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromContext(r.Context())
	fileID := chi.URLParam(r, "fileID")
	workflowID := "upload-" + fileID

	fp := bff.Fingerprint(bff.RouteUploadProgress, tc, map[string]interface{}{"workflow_id": workflowID})
	ttl := time.Duration(bff.TTLFor(bff.RouteUploadProgress)) * time.Second

	body, err := s.bcache.Get(r.Context(), fp, ttl, func(ctx context.Context) ([]byte, error) {
		return s.agg.FetchJSON(ctx, []bff.SubFetch{
			{Name: "execution", Run: func(ctx context.Context) (interface{}, error) {
				return s.driver.Describe(workflowID, "")
			}},
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.index.Track(r.Context(), fileID, fp); err != nil {
		s.logger.Warn("bff index track failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *server) handleTenantSwitch(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromContext(r.Context())
	var in workflows.TenantSwitchInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.UserID = tc.User.UserID
	in.FromTenantID = tc.Tenant.TenantID

	run, err := client.Start(r.Context(), s.client, "tenant_switch",
		client.StartOptions{WorkflowID: "tenant-switch-" + uuid.NewString(), CorrelationID: tc.CorrelationID}, tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := client.Get[workflows.TenantSwitchResult](r.Context(), run)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleInstallModule(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromContext(r.Context())
	var in workflows.ModuleInstallationInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.TenantID = tc.Tenant.TenantID

	run, err := client.Start(r.Context(), s.client, "module_installation",
		client.StartOptions{WorkflowID: "module-install-" + uuid.NewString(), CorrelationID: tc.CorrelationID}, tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": run.ID(), "run_id": run.RunID()})
	_ = s.index.InvalidateEntity(r.Context(), in.TenantID)
}

func (s *server) handleProvisionLicense(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromContext(r.Context())
	var in workflows.LicenseProvisioningInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.TenantID = tc.Tenant.TenantID

	run, err := client.Start(r.Context(), s.client, "license_provisioning",
		client.StartOptions{WorkflowID: "license-" + uuid.NewString(), CorrelationID: tc.CorrelationID}, tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": run.ID(), "run_id": run.RunID()})
}

func (s *server) handleStartSecurityScan(w http.ResponseWriter, r *http.Request) {
	tc := tenantFromContext(r.Context())
	var in workflows.SecurityScanInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.TenantID = tc.Tenant.TenantID

	run, err := client.Start(r.Context(), s.client, "security_scan",
		client.StartOptions{WorkflowID: "security-scan-" + uuid.NewString(), CorrelationID: tc.CorrelationID}, tc, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": run.ID(), "run_id": run.RunID()})
}

func (s *server) handleSecurityScanProgress(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "scanID")
	run, err := s.client.GetRun(workflowID, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	progress, err := client.Query[map[string]interface{}](r.Context(), run, "progress", nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *server) handleDescribeWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	runID := r.URL.Query().Get("run_id")
	rec, err := s.client.Describe(workflowID, runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleSignalWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	name := chi.URLParam(r, "name")
	run, err := s.client.GetRun(workflowID, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload interface{}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := run.Signal(r.Context(), name, payload); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleBulkOperation maps op over workflow_ids directly onto
// engine.Driver.BulkOperation — the supplemented "bulk workflow
// operation" endpoint (spec §6), a thin HTTP surface over a capability
// the driver already implements end to end.
func (s *server) handleBulkOperation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Op              string   `json:"op"`
		WorkflowIDs     []string `json:"workflow_ids"`
		ContinueOnError bool     `json:"continue_on_error"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.WorkflowIDs) == 0 {
		writeError(w, r, cperrors.NewValidation("workflow_ids", "at least one workflow id is required"))
		return
	}

	results := s.client.BulkOperation(r.Context(), engine.LifecycleOp(req.Op), req.WorkflowIDs, req.ContinueOnError)
	out := make([]map[string]string, 0, len(results))
	for _, res := range results {
		item := map[string]string{"workflow_id": res.WorkflowID, "op": string(res.Op)}
		if res.Err != nil {
			item["error"] = res.Err.Error()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}
