package domain

import (
	"time"

	"github.com/harunnryd/voxa/pkg/errorsx"
)

// SyncResult reports one reconciliation operation. Never persisted.
type SyncResult struct {
	Imported int                 `json:"imported"`
	Updated  int                 `json:"updated"`
	Skipped  int                 `json:"skipped"`
	Errors   []errorsx.ItemError `json:"errors"`
}

func NewSyncResult() SyncResult {
	return SyncResult{Errors: []errorsx.ItemError{}}
}

func (r *SyncResult) Fail(item string, err error) {
	r.Errors = append(r.Errors, errorsx.ItemError{Item: item, Error: err.Error()})
}

// StepError is a whole reconciliation step that failed during a full sync.
type StepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// FullSyncResult aggregates the four reconciliation steps.
type FullSyncResult struct {
	Success        bool        `json:"success"`
	PhonesImported *SyncResult `json:"phone_numbers_from_remote,omitempty"`
	PhonesExported *SyncResult `json:"phone_numbers_to_remote,omitempty"`
	AgentsImported *SyncResult `json:"assistants_from_remote,omitempty"`
	AgentsExported *SyncResult `json:"agents_to_remote,omitempty"`
	Errors         []StepError `json:"errors"`
	StartTime      time.Time   `json:"start_time"`
	EndTime        time.Time   `json:"end_time"`
	DurationMillis int64       `json:"duration_ms"`
}

// CountPair compares local and remote totals of one record kind.
type CountPair struct {
	Local  int  `json:"database"`
	Remote int  `json:"remote"`
	InSync bool `json:"in_sync"`
}

type SyncStatus struct {
	PhoneNumbers CountPair `json:"phone_numbers"`
	Agents       CountPair `json:"agents"`
	OverallSync  bool      `json:"overall_sync"`
	Timestamp    time.Time `json:"timestamp"`
}
