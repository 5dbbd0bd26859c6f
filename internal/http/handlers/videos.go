package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"renderly/internal/domain"
	"renderly/pkg/zip"
)

type generateRequest struct {
	ImageRef   string `json:"image_ref"`
	Prompt     string `json:"prompt"`
	Resolution string `json:"resolution"`
}

type jobDTO struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ImageRef   string `json:"image_ref"`
	Prompt     string `json:"prompt"`
	Resolution string `json:"resolution"`
	Cost       int    `json:"cost"`
	ResultRef  string `json:"result_ref,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func jobToDTO(job domain.Job) jobDTO {
	dto := jobDTO{
		ID:         job.ID,
		Status:     string(job.Status),
		ImageRef:   job.InputImageRef,
		Prompt:     job.Prompt,
		Resolution: string(job.Resolution),
		Cost:       job.Cost,
		ResultRef:  job.ResultRef,
		Error:      job.ErrorMessage,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	rt, _, ok := a.runtime(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	resolution := domain.Resolution(strings.TrimSpace(req.Resolution))
	if resolution == "" {
		resolution = domain.Resolution480p
	}
	cost := resolution.CreditCost()
	if cost == 0 {
		a.error(w, http.StatusBadRequest, "invalid_input", "unsupported resolution")
		return
	}

	job, err := rt.Tracker.Submit(r.Context(), req.ImageRef, req.Prompt, resolution, cost)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, jobToDTO(job))
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	rt, userID, ok := a.runtime(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "job_id")

	if active, live := rt.Tracker.Active(); live && active.ID == jobID {
		a.json(w, http.StatusOK, jobToDTO(active))
		return
	}
	for _, job := range rt.Tracker.History() {
		if job.ID == jobID {
			a.json(w, http.StatusOK, jobToDTO(job))
			return
		}
	}

	// Jobs from before the runtime was hydrated live only in the database.
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobToDTO(*job))
}

func (a *App) CancelVideo(w http.ResponseWriter, r *http.Request) {
	rt, _, ok := a.runtime(w, r)
	if !ok {
		return
	}
	job, err := rt.Tracker.Cancel(chi.URLParam(r, "job_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, jobToDTO(job))
}

func (a *App) ListVideos(w http.ResponseWriter, r *http.Request) {
	rt, _, ok := a.runtime(w, r)
	if !ok {
		return
	}

	jobs := rt.Tracker.History()
	if active, live := rt.Tracker.Active(); live {
		jobs = append(jobs, active)
	}
	// Newest first for the gallery.
	out := make([]jobDTO, 0, len(jobs))
	for i := len(jobs) - 1; i >= 0; i-- {
		out = append(out, jobToDTO(jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": out})
}

// ExportVideos bundles the locally stored results of completed jobs into one
// zip download. Results hosted elsewhere are skipped.
func (a *App) ExportVideos(w http.ResponseWriter, r *http.Request) {
	rt, userID, ok := a.runtime(w, r)
	if !ok {
		return
	}

	base := strings.TrimRight(a.Config.StorageBaseURL, "/")
	var assets []zip.Asset
	for _, job := range rt.Tracker.History() {
		if job.Status != domain.JobStatusCompleted || job.ResultRef == "" {
			continue
		}
		if base == "" || !strings.HasPrefix(job.ResultRef, base+"/") {
			continue
		}
		key := strings.TrimPrefix(job.ResultRef, base+"/")
		data, err := a.Store.Read(r.Context(), key)
		if err != nil {
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("export: read asset")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%s.mp4", job.ID),
			MIME:     "video/mp4",
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no downloadable videos")
		return
	}

	archive := zip.ArchiveAssets(assets)
	if archive == nil {
		a.Logger.Error().Str("user_id", userID).Msg("export: archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="videos.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
