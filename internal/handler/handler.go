package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/LiteObject/github-traffic-monitor/internal/models"
	"github.com/LiteObject/github-traffic-monitor/internal/service"
	"github.com/LiteObject/github-traffic-monitor/internal/worker"
	"github.com/LiteObject/github-traffic-monitor/pkg/errors"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
	"github.com/gorilla/mux"
)

type TrafficHandler struct {
	service *service.TrafficService
	worker  *worker.CollectWorker
	ctx     context.Context
}

func NewTrafficHandler(ctx context.Context, service *service.TrafficService, worker *worker.CollectWorker) *TrafficHandler {
	return &TrafficHandler{
		service: service,
		worker:  worker,
		ctx:     ctx,
	}
}

func (h *TrafficHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/traffic/latest", h.getLatestReport).Methods("GET")
	r.HandleFunc("/traffic/runs", h.listRuns).Methods("GET")
	r.HandleFunc("/traffic/collect", h.triggerCollection).Methods("POST")
}

func writeSuccess(w http.ResponseWriter, data interface{}, message ...string) {
	resp := APIResponse{
		Status: "success",
		Data:   data,
	}
	if len(message) > 0 {
		resp.Message = message[0]
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// getLatestReport returns the most recent persisted run together with its
// full per-repository report.
func (h *TrafficHandler) getLatestReport(w http.ResponseWriter, r *http.Request) {
	run, report, err := h.service.LatestReport(r.Context())
	if err != nil {
		errors.WriteHTTPError(w, err)
		return
	}

	logger.Info("served latest traffic report (run %d)", run.ID)
	writeSuccess(w, LatestReportResponse{Run: run, Report: report}, "Successfully fetched latest traffic report")
}

func (h *TrafficHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		errors.WriteHTTPError(w, err)
		return
	}

	if runs == nil {
		runs = []models.TrafficRun{}
	}

	writeSuccess(w, runs, "Successfully fetched traffic runs")
}

// triggerCollection kicks an on-demand collection run. The run itself can
// take a long time, so it is detached from the request; the worker rejects
// the trigger when a run is already in flight.
func (h *TrafficHandler) triggerCollection(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.worker.Collect(h.ctx); err != nil {
			logger.Error("on-demand collection failed: %v", err)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	writeSuccess(w, map[string]string{
		"message": "Collection run started.",
	}, "Collection triggered")
}
