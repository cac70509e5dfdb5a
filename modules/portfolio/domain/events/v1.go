package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicImportCompletedV1 = "portfolio.import.completed.v1"
	EventVersionV1         = 1
)

// ImportCompletedV1 is published on the application bus after every run,
// dry-run included. Consumers must not rely on it for transactional
// guarantees; it is informational only.
type ImportCompletedV1 struct {
	EventVersion int            `json:"event_version"`
	RunID        uuid.UUID      `json:"run_id"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	InitiatorID  int64          `json:"initiator_id"`
	DryRun       bool           `json:"dry_run"`
	Success      bool           `json:"success"`
	Created      int            `json:"created"`
	Updated      int            `json:"updated"`
	ErrorCount   int            `json:"error_count"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Counts       map[string]int `json:"counts"`
}
