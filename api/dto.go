/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients, kept separate from the domain types
  so the wire format can evolve independently. Request bodies carry
  validator tags; handlers reject malformed input before any domain call.

SEE ALSO:
  - handlers.go: Uses these structures
*/
package api

import (
	"time"

	"github.com/warp/timesheet-engine/report"
)

// =============================================================================
// RESPONSES
// =============================================================================

type ReportDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Month     string `json:"month"`
	Status    string `json:"status"`
	Submitted bool   `json:"submitted"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type EntryDTO struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	CategoryID string `json:"category_id"`
	Value      string `json:"value"`
	Comment    string `json:"comment,omitempty"`
	SourceType string `json:"source_type,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
	SourceNote string `json:"source_note,omitempty"`
}

type ValidationDTO struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

type ReportResponse struct {
	Report     ReportDTO     `json:"report"`
	Entries    []EntryDTO    `json:"entries"`
	Validation ValidationDTO `json:"validation"`
}

type CategoryDTO struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
}

type SpecialDayDTO struct {
	Date   string `json:"date"`
	Type   string `json:"type"`
	Scope  string `json:"scope"`
	UserID string `json:"user_id,omitempty"`
}

func toReportDTO(r *report.Report) ReportDTO {
	dto := ReportDTO{
		ID:        string(r.ID),
		OwnerID:   r.OwnerID,
		Month:     r.Month.String(),
		Status:    string(r.Status),
		Submitted: r.Submitted,
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	if !r.UpdatedAt.IsZero() {
		dto.UpdatedAt = r.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toEntryDTOs(entries []report.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = EntryDTO{
			ID:         string(e.ID),
			Date:       e.Date.String(),
			CategoryID: string(e.CategoryID),
			Value:      e.Value.String(),
			Comment:    e.Comment,
			SourceType: string(e.SourceType),
			SourceID:   e.SourceID,
			SourceNote: e.SourceNote,
		}
	}
	return dtos
}

// =============================================================================
// REQUESTS
// =============================================================================

// CommitRequest carries a whole pending edit set: the batched outcome of
// many cell and comment edits, persisted in one pass.
type CommitRequest struct {
	Rows []CommitRow `json:"rows" validate:"required,dive"`
}

// CommitRow is one grid row. Bound rows carry category_id; unbound rows
// carry the typed label instead. Cell values are raw strings straight from
// the edit boundary; an empty string schedules a deletion.
type CommitRow struct {
	CategoryID string            `json:"category_id,omitempty"`
	Label      string            `json:"label,omitempty"`
	Cells      map[string]string `json:"cells"`
	Comment    *string           `json:"comment,omitempty"`
}

type SyncApplyRequest struct {
	OwnerID    string `json:"owner_id" validate:"required"`
	Start      string `json:"start" validate:"required"`
	End        string `json:"end" validate:"required"`
	CategoryID string `json:"category_id" validate:"required"`
	Comment    string `json:"comment"`
	SourceType string `json:"source_type" validate:"required,oneof=leave seminar holiday"`
	SourceID   string `json:"source_id" validate:"required"`
	SourceNote string `json:"source_note"`
}

type SyncRemoveRequest struct {
	OwnerID    string `json:"owner_id" validate:"required"`
	Start      string `json:"start" validate:"required"`
	End        string `json:"end" validate:"required"`
	SourceType string `json:"source_type" validate:"required,oneof=leave seminar holiday"`
	SourceID   string `json:"source_id" validate:"required"`
}
