package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/wattwise/wattwise/pkg/eflcheck"
	"github.com/wattwise/wattwise/pkg/extract"
	"github.com/wattwise/wattwise/pkg/log"
	"github.com/wattwise/wattwise/pkg/storage"
	"github.com/wattwise/wattwise/pkg/types"
)

type createPlanRequest struct {
	EFLText string `json:"eflText"`
	// DeliveryUtility, when set, includes that utility's charges in the
	// validation model. Use it for disclosures whose average-price table
	// bundles delivery.
	DeliveryUtility string `json:"deliveryUtility"`
}

type createPlanResponse struct {
	Persisted   bool                   `json:"persisted"`
	Fingerprint types.PlanFingerprint  `json:"fingerprint"`
	Plan        *types.PlanRules       `json:"plan,omitempty"`
	Confidence  float64                `json:"confidence"`
	Warnings    []string               `json:"warnings,omitempty"`
	Report      types.ValidationReport `json:"report"`
}

// handleCreatePlan runs the full ingestion pipeline: fingerprint the
// disclosure, extract candidate rules, validate them against the
// disclosure's own average-price table, and persist only on PASS. FAIL and
// SKIP candidates are quarantined for manual review, never stored as plans.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.EFLText == "" {
		writeJSONError(w, "eflText is required", http.StatusBadRequest)
		return
	}

	fp := extract.Fingerprint(req.EFLText)
	// downstream log lines all carry the disclosure identity
	ctx = log.WithAttrs(ctx, slog.String("fingerprint", fp.ContentHash))

	// an existing fingerprint means this exact disclosure was already
	// ingested; plan documents are immutable so there is nothing to redo
	if existing, err := s.storage.GetPlan(ctx, fp.ContentHash); err == nil {
		writeJSON(w, createPlanResponse{
			Persisted:   true,
			Fingerprint: fp,
			Plan:        &existing,
		})
		return
	} else if !errors.Is(err, storage.ErrPlanNotFound) {
		log.Ctx(ctx).ErrorContext(ctx, "failed to check existing plan", slog.Any("error", err))
		writeJSONError(w, "failed to check existing plan", http.StatusInternalServerError)
		return
	}

	candidate, err := s.extractor.ExtractPlanRules(ctx, req.EFLText, fp)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "extraction failed", slog.Any("error", err))
		writeJSONError(w, "extraction failed", http.StatusBadGateway)
		return
	}

	report := eflcheck.Validate(ctx, req.EFLText, candidate.Rules, eflcheck.Options{
		ToleranceCentsPerKWH: s.tolerance,
		Delivery:             s.requestDelivery(ctx, req.DeliveryUtility),
	})

	resp := createPlanResponse{
		Fingerprint: fp,
		Confidence:  candidate.Confidence,
		Warnings:    candidate.Warnings,
		Report:      report,
	}

	if report.Status != types.ValidationPass {
		if err := s.storage.QuarantinePlan(ctx, candidate.Rules, report, s.now()); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to quarantine plan", slog.Any("error", err))
			writeJSONError(w, "failed to quarantine plan", http.StatusInternalServerError)
			return
		}
		log.Ctx(ctx).InfoContext(ctx, "plan quarantined for review", slog.String("status", string(report.Status)))
		writeJSONStatus(w, http.StatusAccepted, resp)
		return
	}

	if err := s.storage.CreatePlan(ctx, candidate.Rules); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to create plan", slog.Any("error", err))
		writeJSONError(w, "failed to create plan", http.StatusInternalServerError)
		return
	}
	if err := s.storage.InsertValidationReport(ctx, fp.ContentHash, report, s.now()); err != nil {
		// the plan is already stored; losing the report is not fatal
		log.Ctx(ctx).WarnContext(ctx, "failed to store validation report", slog.Any("error", err))
	}

	resp.Persisted = true
	resp.Plan = &candidate.Rules
	writeJSONStatus(w, http.StatusCreated, resp)
}

type validatePlanRequest struct {
	EFLText         string          `json:"eflText"`
	Plan            types.PlanRules `json:"plan"`
	DeliveryUtility string          `json:"deliveryUtility"`
}

// handleValidatePlan runs the self-consistency check without persisting
// anything. Useful for previewing a hand-corrected candidate before
// re-ingestion.
func (s *Server) handleValidatePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.EFLText == "" {
		writeJSONError(w, "eflText is required", http.StatusBadRequest)
		return
	}

	report := eflcheck.Validate(ctx, req.EFLText, req.Plan, eflcheck.Options{
		ToleranceCentsPerKWH: s.tolerance,
		Delivery:             s.requestDelivery(ctx, req.DeliveryUtility),
	})
	writeJSON(w, report)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fingerprint := r.PathValue("fingerprint")

	plan, err := s.storage.GetPlan(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			writeJSONError(w, "plan not found", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get plan", slog.String("fingerprint", fingerprint), slog.Any("error", err))
		writeJSONError(w, "failed to get plan", http.StatusInternalServerError)
		return
	}

	// plan documents are immutable so clients may cache them for a day
	w.Header().Set("Cache-Control", "public, max-age=86400")
	writeJSON(w, plan)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	plans, err := s.storage.ListPlans(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list plans", slog.Any("error", err))
		writeJSONError(w, "failed to list plans", http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []types.PlanRules{}
	}
	writeJSON(w, plans)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := s.storage.ListReviewQueue(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list review queue", slog.Any("error", err))
		writeJSONError(w, "failed to list review queue", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []types.ReviewItem{}
	}
	writeJSON(w, items)
}

// requestDelivery resolves an optional utility name to its current tariff.
// An unknown utility is logged and skipped rather than failing the request.
func (s *Server) requestDelivery(ctx context.Context, utility string) *types.DeliveryTariff {
	if utility == "" || s.tariffs == nil {
		return nil
	}
	tariff, err := s.tariffs.Tariff(ctx, utility, s.now())
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "validating without delivery charges", slog.String("utility", utility), slog.Any("error", err))
		return nil
	}
	return &tariff
}
