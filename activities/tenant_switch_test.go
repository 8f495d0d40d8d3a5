package activities_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/activities"
	"github.com/saastenant/orchestrator/internal/cache"
)

func newTestCache(t *testing.T) cache.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewRedisStore(client)
}

func TestValidateTenantSwitch(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"user_id", "tenant_id", "email", "roles", "permissions"}).
		AddRow("u1", "t2", "u1@example.com", `["member"]`, `{"read":true}`)
	mock.ExpectQuery(`SELECT user_id, tenant_id, email, roles, permissions FROM app_user`).
		WithArgs("t2", "u1").
		WillReturnRows(rows)

	a := activities.ValidateTenantSwitch{Store: s}
	_, err := a.Execute(testActivityContext(), activities.ValidateTenantSwitchInput{UserID: "u1", ToTenantID: "t2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReissueSession(t *testing.T) {
	c := newTestCache(t)
	a := activities.ReissueSession{Cache: c}

	out, err := a.Execute(testActivityContext(), activities.ReissueSessionInput{
		UserID: "u1", ToTenantID: "t2", OldSessionID: "",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.SessionID)
}

func TestReissueSession_InvalidatesOldSession(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Set(testActivityContext(), "session:old1", []byte("{}"), 0))

	a := activities.ReissueSession{Cache: c}
	out, err := a.Execute(testActivityContext(), activities.ReissueSessionInput{
		UserID: "u1", ToTenantID: "t2", OldSessionID: "old1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.SessionID)

	_, getErr := c.Get(testActivityContext(), "session:old1")
	require.Error(t, getErr)
}

func TestRecordTenantSwitch(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs("t2", "u1", "tenant_switch", "", "", "switched from t1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := activities.RecordTenantSwitch{Audit: s}
	_, err := a.Execute(testActivityContext(), activities.RecordTenantSwitchInput{
		UserID: "u1", FromTenantID: "t1", ToTenantID: "t2",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTenantSwitch_RequiresDestination(t *testing.T) {
	a := activities.RecordTenantSwitch{}
	require.Error(t, a.ValidateInput(activities.RecordTenantSwitchInput{UserID: "u1"}))
}
