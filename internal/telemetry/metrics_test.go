package telemetry_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/internal/telemetry"
)

func TestMetrics_RecordWorkflowLifecycle(t *testing.T) {
	m := telemetry.NewMetrics("orchestrator_test")

	m.RecordWorkflowStart("tenant_provisioning", "t1")
	require.Equal(t, float64(1), testutil.ToFloat64(m.WorkflowsStarted.WithLabelValues("tenant_provisioning", "t1")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.WorkflowsInFlight.WithLabelValues("tenant_provisioning")))

	m.RecordWorkflowEnd("tenant_provisioning", "Completed", 2*time.Second)
	require.Equal(t, float64(0), testutil.ToFloat64(m.WorkflowsInFlight.WithLabelValues("tenant_provisioning")))
}

func TestMetrics_RecordActivityRetry(t *testing.T) {
	m := telemetry.NewMetrics("orchestrator_test2")

	m.RecordActivity("provision_storage", "Completed", 100*time.Millisecond, 1)
	require.Equal(t, float64(0), testutil.ToFloat64(m.ActivityRetries.WithLabelValues("provision_storage")))

	m.RecordActivity("provision_storage", "Completed", 100*time.Millisecond, 2)
	require.Equal(t, float64(1), testutil.ToFloat64(m.ActivityRetries.WithLabelValues("provision_storage")))
}

func TestNewLogger_ValidLevel(t *testing.T) {
	logger, err := telemetry.NewLogger(telemetry.LoggerConfig{Level: "debug", JSON: true})
	require.NoError(t, err)
	require.NotNil(t, logger)
}
