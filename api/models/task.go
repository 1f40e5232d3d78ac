package models

import (
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusDone       TaskStatus = "done"
	StatusSkipped    TaskStatus = "skipped"
	StatusError      TaskStatus = "error"
)

// Terminal reports whether no further worker action is expected for the status.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusSkipped || s == StatusError
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleWorker Role = "worker"
)

// Worker identifies the requester. Credentials live at the identity
// boundary; the core only ever sees id and role.
type Worker struct {
	ID   string
	Role Role
}

func (w Worker) IsAdmin() bool {
	return w.Role == RoleAdmin
}

// Task tracks curation progress for one catalog product. ProductID is the
// stable reference into the external catalog and is unique across rows.
// Assignee is set exactly while the task is processing.
type Task struct {
	ID          int64
	ProductID   string
	Title       string
	Handle      string
	Thumbnail   string
	Description string
	Status      TaskStatus
	Assignee    string
	ErrorDetail string
	ProcessedAt *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Candidate is the structured record for one acquired image. The file on
// disk is still named {product_id}-{provenance_slug}-{ordinal}.{ext} for
// external tooling, but consumers read provenance from this record, not
// from the filename.
type Candidate struct {
	FileName   string `json:"file_name"`
	Provenance string `json:"provenance"`
	Ordinal    int    `json:"ordinal"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Valid      bool   `json:"valid"`
}
