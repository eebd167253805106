package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/insilica/dockgate/internal/api/shared"
	"github.com/insilica/dockgate/internal/domain"
	"github.com/insilica/dockgate/internal/service"
	"github.com/insilica/dockgate/internal/task"
)

// DockingHandler handles docking-related HTTP requests.
type DockingHandler struct {
	dockingService service.DockingService
	slots          *task.SlotTable
	descriptor     ToolDescriptor
}

// NewDockingHandler creates a new DockingHandler. The slot table is
// optional; without it the health endpoint reports zero accelerators.
func NewDockingHandler(dockingService service.DockingService, slots *task.SlotTable) *DockingHandler {
	return &DockingHandler{
		dockingService: dockingService,
		slots:          slots,
		descriptor: ToolDescriptor{
			ID:          "dockgate",
			Name:        "DockGate",
			Description: "Dock small molecules onto human proteins using DiffDock.",
			Publisher:   "Insilica, LLC.",
			URL:         "https://dockgate.toxindex.com",
			APISpecURL:  "https://dockgate.toxindex.com/openapi.json",
		},
	}
}

// StartDocking handles POST /start_docking_uniprot requests. Accepted
// jobs run asynchronously, so the response is 202 with the job ID.
func (h *DockingHandler) StartDocking(w http.ResponseWriter, r *http.Request) {
	var req StartDockingRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	job, err := h.dockingService.StartDocking(r.Context(), req.UniProtID, req.Ligand, req.CallbackURL)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, StartDockingResponse{
		JobID:  job.ID.String(),
		Status: string(domain.JobStateQueued),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *DockingHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	jobID, err := uuid.Parse(idParam)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.dockingService.GetJob(r.Context(), jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// Health handles GET /health requests.
func (h *DockingHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "OK",
		Message: "docking service is running",
	}
	if h.slots != nil {
		resp.Accelerators = h.slots.Size()
		for _, slot := range h.slots.Snapshot() {
			if slot.Busy {
				resp.BusyAccelerators++
			}
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// ToolDescriptor handles GET /.well-known/tool.json requests.
func (h *DockingHandler) ToolDescriptor(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.descriptor)
}
