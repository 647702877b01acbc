package service

import (
	"encoding/json"
	"time"

	"recruit_proctor/internal/domain/model"

	"github.com/google/uuid"
)

// newLogEntry builds an audit entry. Details that fail to encode are replaced
// by an empty object so the entry is still written.
func newLogEntry(assignmentID, eventType, actor string, details map[string]any, at time.Time) *model.ProctorLogEntry {
	raw := json.RawMessage(`{}`)
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	return &model.ProctorLogEntry{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		EventType:    eventType,
		Details:      raw,
		Actor:        actor,
		CreatedAt:    at.UTC(),
	}
}
