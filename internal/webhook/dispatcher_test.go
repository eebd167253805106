package webhook_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insilica/dockgate/internal/config"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/mocks"
	"github.com/insilica/dockgate/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCallbackConfig() config.CallbackConfig {
	return config.CallbackConfig{
		MaxRetries:     2,
		BaseDelay:      time.Millisecond,
		RequestTimeout: time.Second,
	}
}

func succeededJob(t *testing.T, store *mocks.MockJobStore, callbackURL string) *domain.DockingJob {
	t.Helper()
	job, err := domain.NewDockingJob("P12345", "CCO", callbackURL, 3)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), job))
	require.NoError(t, store.MarkSucceeded(context.Background(), job.ID, "/results/"+job.ID.String()+".sdf"))

	job, err = store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	return job
}

func TestDeliverSuccess(t *testing.T) {
	var received atomic.Int32
	var lastBody webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jobStore := mocks.NewMockJobStore()
	job := succeededJob(t, jobStore, srv.URL)

	d := webhook.NewDispatcher(jobStore, testCallbackConfig(), testLogger())
	require.NoError(t, d.Deliver(context.Background(), job))

	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, job.ID.String(), lastBody.JobID)
	assert.Equal(t, "P12345", lastBody.ProteinID)
	assert.Equal(t, "succeeded", lastBody.State)
	require.NotNil(t, lastBody.ResultRef)
	assert.Nil(t, lastBody.Error)

	stored, err := jobStore.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, stored.DeliveryStatus)
	assert.Equal(t, 1, stored.DeliveryAttempts)
}

func TestDeliverFailedJobCarriesError(t *testing.T) {
	var lastBody webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jobStore := mocks.NewMockJobStore()
	job, err := domain.NewDockingJob("P12345", "CCO", srv.URL, 3)
	require.NoError(t, err)
	require.NoError(t, jobStore.Save(context.Background(), job))
	require.NoError(t, jobStore.MarkFailed(context.Background(), job.ID, domain.ErrorKindTimeout, "inference exceeded 30m"))
	job, err = jobStore.GetByID(context.Background(), job.ID)
	require.NoError(t, err)

	d := webhook.NewDispatcher(jobStore, testCallbackConfig(), testLogger())
	require.NoError(t, d.Deliver(context.Background(), job))

	assert.Equal(t, "failed", lastBody.State)
	assert.Nil(t, lastBody.ResultRef)
	require.NotNil(t, lastBody.Error)
	assert.Equal(t, "timeout", lastBody.Error.Kind)
	assert.Equal(t, "inference exceeded 30m", lastBody.Error.Message)
}

func TestDeliverRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jobStore := mocks.NewMockJobStore()
	job := succeededJob(t, jobStore, srv.URL)

	d := webhook.NewDispatcher(jobStore, testCallbackConfig(), testLogger())
	require.NoError(t, d.Deliver(context.Background(), job))

	assert.Equal(t, int32(3), calls.Load())

	stored, err := jobStore.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, stored.DeliveryStatus)
	assert.Equal(t, 3, stored.DeliveryAttempts)
}

func TestDeliverExhaustsRetriesAndMarksFailed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	jobStore := mocks.NewMockJobStore()
	job := succeededJob(t, jobStore, srv.URL)

	cfg := testCallbackConfig()
	d := webhook.NewDispatcher(jobStore, cfg, testLogger())
	err := d.Deliver(context.Background(), job)
	require.Error(t, err)

	// Attempted exactly MaxRetries+1 times.
	assert.Equal(t, int32(cfg.MaxRetries+1), calls.Load())

	stored, getErr := jobStore.GetByID(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.DeliveryFailed, stored.DeliveryStatus)
}

func TestDeliverSkipsAlreadyClaimedJob(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	jobStore := mocks.NewMockJobStore()
	job := succeededJob(t, jobStore, srv.URL)

	d := webhook.NewDispatcher(jobStore, testCallbackConfig(), testLogger())
	require.NoError(t, d.Deliver(context.Background(), job))
	// A broker redelivery hands the same terminal job to the
	// dispatcher again; the second sequence must not POST.
	require.NoError(t, d.Deliver(context.Background(), job))

	assert.Equal(t, int32(1), calls.Load())
}
