package adapters_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/saastenant/orchestrator/internal/adapters"
	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

func TestHTTPEmailSender_TripsBreakerAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var transitions []gobreaker.State
	sender := adapters.NewHTTPEmailSender(srv.URL, srv.Client(), func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := sender.Send(ctx, "a@b.test", "subject", "body")
		require.Error(t, err)
	}

	// Breaker is now open; the 4th call must fail without reaching the
	// server, surfacing as the same ExternalService code.
	err := sender.Send(ctx, "a@b.test", "subject", "body")
	require.Error(t, err)
	require.Equal(t, cperrors.CodeExternalService, cperrors.CodeOf(err))
	require.Contains(t, transitions, gobreaker.StateOpen)
}

func TestInMemoryObjectStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := adapters.NewInMemoryObjectStore()

	require.NoError(t, store.Put(ctx, "t1/file-1", []byte("hello")))
	v, err := store.Get(ctx, "t1/file-1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)

	size, err := store.Size(ctx, "t1/")
	require.NoError(t, err)
	require.Equal(t, int64(5), size)

	require.NoError(t, store.Delete(ctx, "t1/file-1"))
	_, err = store.Get(ctx, "t1/file-1")
	require.Equal(t, cperrors.CodeNotFound, cperrors.CodeOf(err))
}

func TestInMemoryPaymentProcessor_ChargeAndRefund(t *testing.T) {
	ctx := context.Background()
	proc := adapters.NewInMemoryPaymentProcessor()

	id, err := proc.Charge(ctx, "t1", 1999, "usd", "license-activation")
	require.NoError(t, err)
	require.Equal(t, int64(1999), proc.Charges[id])

	require.NoError(t, proc.Refund(ctx, id))
	require.True(t, proc.Refunded[id])
}
