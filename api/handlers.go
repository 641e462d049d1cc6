/*
handlers.go - HTTP handlers for the report engine

PURPOSE:
  Exposes the report lifecycle, batch commit, validation query and flagged-
  day synchronization via REST. Handles HTTP request/response, JSON
  serialization and caller identity, and delegates everything else to the
  report package.

CALLER IDENTITY:
  Identity resolution lives outside this system. The narrow contract here:
    X-Subject:     caller's subject id (required for writes)
    X-Admin:       "true" marks an administrator
    X-Edit-Intent: "true" is the explicit toggle an administrator must set
                   to mutate another user's report

ERROR HANDLING:
  Domain errors map onto HTTP status codes:
  - 400: Malformed input, invalid cell values, unresolved rows
  - 403: Write guard rejected the actor
  - 404: Report/entry not found
  - 409: Conflict (report locked by another actor, illegal transition)
  - 422: Validation failure blocking the validated transition
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/timesheet-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       report.StoreGateway
	Reports     *report.Reports
	Sync        *report.SyncEngine
	Categories  *report.CategoryCache
	SpecialDays *report.SpecialDayCache
	Log         *logrus.Logger

	validate *validator.Validate
}

func NewHandler(store report.StoreGateway, reports *report.Reports, sync *report.SyncEngine,
	categories *report.CategoryCache, specialDays *report.SpecialDayCache, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Store:       store,
		Reports:     reports,
		Sync:        sync,
		Categories:  categories,
		SpecialDays: specialDays,
		Log:         log,
		validate:    validator.New(),
	}
}

func actorFrom(r *http.Request) report.Actor {
	return report.Actor{
		SubjectID:  r.Header.Get("X-Subject"),
		Admin:      r.Header.Get("X-Admin") == "true",
		EditIntent: r.Header.Get("X-Edit-Intent") == "true",
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetReport returns the report for (owner, month), creating it in draft if
// absent, together with its entries and a live validation result.
// GET /api/reports?owner=&month=
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		ownerID = actor.SubjectID
	}
	month, err := report.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}

	rep, err := h.Reports.GetOrCreate(r.Context(), actor, ownerID, month)
	if err != nil {
		writeDomainError(w, "Failed to load report", err)
		return
	}
	h.writeReportResponse(w, r, rep)
}

// Commit persists a whole pending edit set against the report.
// POST /api/reports/{id}/commit
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := report.ReportID(chi.URLParam(r, "id"))

	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commit payload", err)
		return
	}

	rep, err := h.Store.GetReport(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load report", err)
		return
	}

	grid, err := report.NewGrid(r.Context(), h.Store, actor, rep, h.Log)
	if err != nil {
		writeDomainError(w, "Failed to load grid", err)
		return
	}
	if err := stageRows(grid, rep, req.Rows); err != nil {
		writeDomainError(w, "Rejected edit", err)
		return
	}
	if err := grid.Commit(r.Context()); err != nil {
		writeDomainError(w, "Commit failed", err)
		return
	}

	h.writeReportResponse(w, r, grid.Report())
}

// stageRows replays the client's batched edits into the grid. Cell values
// are raw input; rejection happens here, at the edit boundary, before
// Commit ever talks to the gateway.
func stageRows(grid *report.Grid, rep *report.Report, rows []CommitRow) error {
	for _, row := range rows {
		var key report.RowKey
		if row.CategoryID != "" {
			key = grid.Row(report.CategoryID(row.CategoryID))
		} else {
			key = grid.AddRow(row.Label)
		}
		for date, raw := range row.Cells {
			day, err := report.ParseDay(date)
			if err != nil {
				return err
			}
			if !rep.Month.Contains(day) {
				return fmt.Errorf("date %s outside report month %s", day, rep.Month)
			}
			if err := grid.SetCell(key, day, raw); err != nil {
				return err
			}
		}
		if row.Comment != nil {
			if err := grid.SetComment(key, *row.Comment); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validation runs the validation engine without mutating anything.
// GET /api/reports/{id}/validation
func (h *Handler) Validation(w http.ResponseWriter, r *http.Request) {
	id := report.ReportID(chi.URLParam(r, "id"))
	result, err := h.Reports.Validation(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to validate report", err)
		return
	}
	writeJSON(w, http.StatusOK, ValidationDTO{OK: result.OK, Errors: nonNil(result.Errors)})
}

// Submit moves saved -> validated after an authoritative validation pass.
// POST /api/reports/{id}/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Reports.Submit)
}

// Reopen moves validated -> saved.
// POST /api/reports/{id}/reopen
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Reports.Reopen)
}

// Close moves validated -> closed. Administrators only; terminal.
// POST /api/reports/{id}/close
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Reports.Close)
}

// Reset clears every entry and reverts the report to draft.
// POST /api/reports/{id}/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Reports.Reset)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, actor report.Actor, id report.ReportID) (*report.Report, error)) {
	actor := actorFrom(r)
	id := report.ReportID(chi.URLParam(r, "id"))
	rep, err := op(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, "Transition failed", err)
		return
	}
	h.writeReportResponse(w, r, rep)
}

// =============================================================================
// SYNC HANDLERS
// =============================================================================

// SyncApply stamps flagged days across a range on behalf of an approval
// workflow. POST /api/sync/apply
func (h *Handler) SyncApply(w http.ResponseWriter, r *http.Request) {
	var req SyncApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid apply payload", err)
		return
	}
	start, err := report.ParseDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := report.ParseDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	err = h.Sync.Apply(r.Context(), report.ApplyInput{
		OwnerID:    req.OwnerID,
		Start:      start,
		End:        end,
		CategoryID: report.CategoryID(req.CategoryID),
		Comment:    req.Comment,
		SourceType: report.SourceType(req.SourceType),
		SourceID:   req.SourceID,
		SourceNote: req.SourceNote,
	})
	if err != nil {
		writeDomainError(w, "Apply failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "applied"})
}

// SyncRemove retracts previously stamped days by provenance.
// POST /api/sync/remove
func (h *Handler) SyncRemove(w http.ResponseWriter, r *http.Request) {
	var req SyncRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid remove payload", err)
		return
	}
	start, err := report.ParseDay(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	end, err := report.ParseDay(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end date", err)
		return
	}

	err = h.Sync.Remove(r.Context(), report.RemoveInput{
		OwnerID:    req.OwnerID,
		Start:      start,
		End:        end,
		SourceType: report.SourceType(req.SourceType),
		SourceID:   req.SourceID,
	})
	if err != nil {
		writeDomainError(w, "Remove failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "removed"})
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListCategories returns the category registry (read-only here).
// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Categories.ByID(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}
	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryDTO{ID: string(c.ID), Label: c.Label, Kind: string(c.Kind), Active: c.Active})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListSpecialDays returns the calendar data for a month.
// GET /api/special-days?month=&owner=
func (h *Handler) ListSpecialDays(w http.ResponseWriter, r *http.Request) {
	month, err := report.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return
	}
	days, err := h.SpecialDays.ForMonth(r.Context(), month, r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list special days", err)
		return
	}
	dtos := make([]SpecialDayDTO, 0, len(days))
	for _, d := range days {
		dtos = append(dtos, SpecialDayDTO{Date: d.Date.String(), Type: string(d.Type), Scope: string(d.Scope), UserID: d.UserID})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeReportResponse(w http.ResponseWriter, r *http.Request, rep *report.Report) {
	entries, err := h.Store.ListEntries(r.Context(), report.EntryFilter{ReportID: rep.ID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list entries", err)
		return
	}
	result, err := h.Reports.Validation(r.Context(), rep.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to validate report", err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Report:     toReportDTO(rep),
		Entries:    toEntryDTOs(entries),
		Validation: ValidationDTO{OK: result.OK, Errors: nonNil(result.Errors)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	body := map[string]any{"error": msg}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}

// writeDomainError maps domain errors onto HTTP statuses per the taxonomy
// in the package comment.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	var vErr *report.ValidationFailureError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      msg,
			"violations": vErr.Violations,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case report.IsConflict(err), errors.Is(err, report.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, report.ErrForbidden):
		status = http.StatusForbidden
	case report.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, report.ErrUnresolvedRow), isEditRejection(err):
		status = http.StatusBadRequest
	}
	writeError(w, status, msg, err)
}

func isEditRejection(err error) bool {
	var ivErr *report.InvalidValueError
	var capErr *report.DailyCapError
	return errors.As(err, &ivErr) || errors.As(err, &capErr)
}

func nonNil(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
