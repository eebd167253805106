package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insilica/dockgate/internal/api"
	"github.com/insilica/dockgate/internal/api/middleware"
	"github.com/insilica/dockgate/internal/chem"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/protein"
	"github.com/insilica/dockgate/internal/service"
	"github.com/insilica/dockgate/internal/task"
)

// fakeDockingService scripts service responses for handler tests.
type fakeDockingService struct {
	startFn func(ctx context.Context, proteinID, ligand, callbackURL string) (*domain.DockingJob, error)
	getFn   func(ctx context.Context, jobID uuid.UUID) (*domain.DockingJob, error)
}

func (f *fakeDockingService) StartDocking(
	ctx context.Context,
	proteinID, ligand, callbackURL string,
) (*domain.DockingJob, error) {
	return f.startFn(ctx, proteinID, ligand, callbackURL)
}

func (f *fakeDockingService) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.DockingJob, error) {
	return f.getFn(ctx, jobID)
}

func newTestRouter(svc service.DockingService, slots *task.SlotTable) *chi.Mux {
	handler := api.NewDockingHandler(svc, slots)
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Post("/start_docking_uniprot", handler.StartDocking)
	r.Get("/jobs/{id}", handler.GetJob)
	r.Get("/health", handler.Health)
	r.Get("/.well-known/tool.json", handler.ToolDescriptor)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartDockingAccepted(t *testing.T) {
	t.Parallel()

	job, err := domain.NewDockingJob("P69905", "CCO", "https://example.com/hook", 3)
	require.NoError(t, err)

	svc := &fakeDockingService{
		startFn: func(_ context.Context, proteinID, ligand, callbackURL string) (*domain.DockingJob, error) {
			assert.Equal(t, "P69905", proteinID)
			assert.Equal(t, "CCO", ligand)
			assert.Equal(t, "https://example.com/hook", callbackURL)
			return job, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodPost, "/start_docking_uniprot",
		`{"uniprot_id":"P69905","ligand":"CCO","callback_url":"https://example.com/hook"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp api.StartDockingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, job.ID.String(), resp.JobID)
	assert.Equal(t, "queued", resp.Status)
}

func TestStartDockingMalformedBody(t *testing.T) {
	t.Parallel()

	svc := &fakeDockingService{
		startFn: func(context.Context, string, string, string) (*domain.DockingJob, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodPost, "/start_docking_uniprot", `{"uniprot_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartDockingMissingFields(t *testing.T) {
	t.Parallel()

	svc := &fakeDockingService{
		startFn: func(context.Context, string, string, string) (*domain.DockingJob, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodPost, "/start_docking_uniprot",
		`{"uniprot_id":"P69905"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartDockingErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid smiles", fmt.Errorf("%w: unclosed ring", chem.ErrSMILESSyntax), http.StatusBadRequest},
		{"unknown protein", fmt.Errorf("%w: Q00000", protein.ErrProteinNotFound), http.StatusNotFound},
		{"archive down", fmt.Errorf("%w: status 500", protein.ErrFetchFailed), http.StatusBadGateway},
		{"internal", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeDockingService{
				startFn: func(context.Context, string, string, string) (*domain.DockingJob, error) {
					return nil, tc.err
				},
			}
			router := newTestRouter(svc, nil)

			rec := doJSON(t, router, http.MethodPost, "/start_docking_uniprot",
				`{"uniprot_id":"P69905","ligand":"CCO","callback_url":"https://example.com/hook"}`)
			assert.Equal(t, tc.wantStatus, rec.Code)

			// Raw error details never reach the client.
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestGetJobSucceeded(t *testing.T) {
	t.Parallel()

	job, err := domain.NewDockingJob("P69905", "CCO", "https://example.com/hook", 3)
	require.NoError(t, err)
	job.State = domain.JobStateSucceeded
	job.ResultRef = "results/" + job.ID.String() + ".sdf"
	job.DeliveryStatus = domain.DeliveryDelivered

	svc := &fakeDockingService{
		getFn: func(_ context.Context, jobID uuid.UUID) (*domain.DockingJob, error) {
			assert.Equal(t, job.ID, jobID)
			return job, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodGet, "/jobs/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp.Status)
	require.NotNil(t, resp.ResultRef)
	assert.Equal(t, job.ResultRef, *resp.ResultRef)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "delivered", resp.DeliveryStatus)
}

func TestGetJobFailedCarriesError(t *testing.T) {
	t.Parallel()

	job, err := domain.NewDockingJob("P69905", "CCO", "https://example.com/hook", 3)
	require.NoError(t, err)
	job.State = domain.JobStateFailed
	job.ErrorKind = domain.ErrorKindEngine
	job.ErrorMessage = "inference rejected ligand"

	svc := &fakeDockingService{
		getFn: func(context.Context, uuid.UUID) (*domain.DockingJob, error) {
			return job, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodGet, "/jobs/"+job.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "engine", resp.Error.Kind)
	assert.Nil(t, resp.ResultRef)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	svc := &fakeDockingService{
		getFn: func(context.Context, uuid.UUID) (*domain.DockingJob, error) {
			return nil, service.ErrJobNotFound
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodGet, "/jobs/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobInvalidID(t *testing.T) {
	t.Parallel()

	svc := &fakeDockingService{
		getFn: func(context.Context, uuid.UUID) (*domain.DockingJob, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	rec := doJSON(t, router, http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsSlots(t *testing.T) {
	t.Parallel()

	slots := task.NewSlotTable(2)
	require.NoError(t, slots.Claim(0, uuid.New()))

	router := newTestRouter(&fakeDockingService{}, slots)

	rec := doJSON(t, router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, 2, resp.Accelerators)
	assert.Equal(t, 1, resp.BusyAccelerators)
}

func TestToolDescriptor(t *testing.T) {
	t.Parallel()

	router := newTestRouter(&fakeDockingService{}, nil)

	rec := doJSON(t, router, http.MethodGet, "/.well-known/tool.json", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.ToolDescriptor
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dockgate", resp.ID)
	assert.NotEmpty(t, resp.Description)
}
