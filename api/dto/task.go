package dto

import "imagecurator/api/models"

type TaskResponse struct {
	ProductID   string  `json:"product_id"`
	Title       string  `json:"title"`
	Handle      string  `json:"handle,omitempty"`
	Status      string  `json:"status"`
	Assignee    string  `json:"assignee,omitempty"`
	ErrorDetail string  `json:"error_detail,omitempty"`
	ProcessedAt *string `json:"processed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type ListResponse struct {
	Page  int            `json:"page"`
	Tasks []TaskResponse `json:"tasks"`
}

type CandidatesResponse struct {
	ProductID  string             `json:"product_id"`
	Candidates []models.Candidate `json:"candidates"`
}

// PublishRequest carries the human selection: the files to keep and which
// of them becomes the thumbnail.
type PublishRequest struct {
	Selected  []string `json:"selected"`
	Thumbnail string   `json:"thumbnail"`
}

type SyncResponse struct {
	Loaded int64 `json:"loaded"`
}

type RestartResponse struct {
	Restarted int64 `json:"restarted"`
}

type StatusResponse struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}
