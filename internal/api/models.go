package api

import (
	"time"

	"github.com/insilica/dockgate/internal/domain"
)

// StartDockingRequest represents the request body for submitting a
// docking job.
type StartDockingRequest struct {
	UniProtID   string `json:"uniprot_id"   validate:"required,min=1,max=64"`
	Ligand      string `json:"ligand"       validate:"required,min=1"`
	CallbackURL string `json:"callback_url" validate:"required,url"`
}

// StartDockingResponse acknowledges an accepted docking job.
type StartDockingResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// JobError carries the failure classification for a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// JobResponse represents the externally visible state of a docking
// job.
type JobResponse struct {
	JobID          string    `json:"job_id"`
	UniProtID      string    `json:"uniprot_id"`
	Ligand         string    `json:"ligand"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	ResultRef      *string   `json:"result_ref,omitempty"`
	Error          *JobError `json:"error,omitempty"`
	DeliveryStatus string    `json:"delivery_status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HealthResponse reports service liveness and accelerator occupancy.
type HealthResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	Accelerators     int    `json:"accelerators"`
	BusyAccelerators int    `json:"busy_accelerators"`
}

// ToolDescriptor is the machine-readable self-description served at
// /.well-known/tool.json.
type ToolDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Publisher   string `json:"publisher"`
	URL         string `json:"url"`
	APISpecURL  string `json:"apiSpecUrl"`
}

// jobToResponse converts a domain.DockingJob to a JobResponse.
func jobToResponse(job *domain.DockingJob) JobResponse {
	resp := JobResponse{
		JobID:          job.ID.String(),
		UniProtID:      job.ProteinID,
		Ligand:         job.Ligand,
		Status:         string(job.State),
		Attempts:       job.Attempts,
		DeliveryStatus: string(job.DeliveryStatus),
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if job.State == domain.JobStateSucceeded && job.ResultRef != "" {
		ref := job.ResultRef
		resp.ResultRef = &ref
	}
	if job.State == domain.JobStateFailed {
		resp.Error = &JobError{
			Kind:    string(job.ErrorKind),
			Message: job.ErrorMessage,
		}
	}
	return resp
}
