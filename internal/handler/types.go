package handler

import "github.com/LiteObject/github-traffic-monitor/internal/models"

type APIResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type LatestReportResponse struct {
	Run    *models.TrafficRun   `json:"run"`
	Report models.TrafficReport `json:"report"`
}
