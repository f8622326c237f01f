package dto

import "encoding/json"

// TrackEventRequest represents one analytics event from a client
type TrackEventRequest struct {
	EventName  string          `json:"event_name" validate:"required,max=64"`
	SessionID  string          `json:"session_id" validate:"required,max=128"`
	Properties json.RawMessage `json:"properties,omitempty" validate:"omitempty"`
}

// TrackEventResponse acknowledges acceptance into the ingest queue
type TrackEventResponse struct {
	Message string `json:"message"`
}

// FunnelStepDTO represents one step's completion count in a funnel report
type FunnelStepDTO struct {
	Step      string  `json:"step"`
	Completed int64   `json:"completed"`
	Rate      float64 `json:"rate"`
}

// FunnelReportResponse represents conversion totals for a named funnel
type FunnelReportResponse struct {
	Funnel   string          `json:"funnel"`
	Sessions int64           `json:"sessions"`
	Steps    []FunnelStepDTO `json:"steps"`
}
