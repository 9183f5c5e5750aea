package httpapi

import (
	"net/http"

	"github.com/example/stockroom/api-go/internal/model"
)

type enqueuePrintRequest struct {
	ProductID flexString `json:"productId"`
	Copies    flexInt    `json:"copies"`
}

type enqueuePrintResponse struct {
	Status string           `json:"status"`
	Jobs   []model.PrintJob `json:"jobs"`
}

type claimPrintResponse struct {
	Job *model.EnrichedPrintJob `json:"job"`
}

func (s Server) handleEnqueuePrint(w http.ResponseWriter, r *http.Request) {
	var req enqueuePrintRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	copies := 1
	if req.Copies.Set {
		copies = clampInt(req.Copies.Value)
	}
	jobs, err := s.PrintQueue.Enqueue(r.Context(), string(req.ProductID), copies)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueuePrintResponse{Status: "queued", Jobs: jobs})
}

// handleClaimPrint dequeues at most one job. An empty queue is {"job": null}.
func (s Server) handleClaimPrint(w http.ResponseWriter, r *http.Request) {
	job, err := s.PrintQueue.ClaimNext(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimPrintResponse{Job: job})
}

func (s Server) handlePrintStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.PrintQueue.Pending(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": n})
}

// clampInt narrows v to int range before the queue applies its own bounds.
func clampInt(v int64) int {
	const maxInt = int64(^uint(0) >> 1)
	const minInt = -maxInt - 1
	switch {
	case v > maxInt:
		return int(maxInt)
	case v < minInt:
		return int(minInt)
	}
	return int(v)
}
