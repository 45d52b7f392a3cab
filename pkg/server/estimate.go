package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wattwise/wattwise/pkg/estimate"
	"github.com/wattwise/wattwise/pkg/log"
	"github.com/wattwise/wattwise/pkg/storage"
)

type estimateRequest struct {
	PlanFingerprint   string  `json:"planFingerprint"`
	HomeID            string  `json:"homeId"`
	Months            int     `json:"months"`
	DeliveryUtility   string  `json:"deliveryUtility"`
	AnnualKWH         float64 `json:"annualKwh"`
	AutoEnsureBuckets bool    `json:"autoEnsureBuckets"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.PlanFingerprint == "" {
		writeJSONError(w, "planFingerprint is required", http.StatusBadRequest)
		return
	}
	if req.HomeID == "" {
		writeJSONError(w, "homeId is required", http.StatusBadRequest)
		return
	}

	// downstream log lines all carry the request identity
	ctx = log.WithAttrs(ctx,
		slog.String("fingerprint", req.PlanFingerprint),
		slog.String("homeID", req.HomeID))

	plan, err := s.storage.GetPlan(ctx, req.PlanFingerprint)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			writeJSONError(w, "plan not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get plan", slog.Any("error", err))
		writeJSONError(w, "failed to get plan", http.StatusInternalServerError)
		return
	}

	resp := s.orchestrator.Estimate(ctx, estimate.Request{
		Plan:              plan,
		HomeID:            req.HomeID,
		Months:            req.Months,
		DeliveryUtility:   req.DeliveryUtility,
		AnnualKWH:         req.AnnualKWH,
		AutoEnsureBuckets: req.AutoEnsureBuckets,
	})

	// estimates depend on the rolling bucket window, so cache only briefly
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, resp)
}
