/*
handlers.go - HTTP API handlers for the credit and attendance engine

PURPOSE:
  Exposes the credit engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog:
    GET/POST /api/subjects              List / create subjects
    GET/POST /api/packages              List / create packages

  Directory:
    GET/POST /api/students              List / create students
    GET      /api/students/{id}/credits Per-subject credit summary
    GET/POST /api/teachers              List / create teachers

  Purchases:
    GET/POST /api/purchases             List / create purchases
    POST     /api/purchases/{id}/settle Settle (idempotent)
    DELETE   /api/purchases/{id}        Delete (pending only)

  Attendance:
    POST     /api/attendance            Check in (debits credit)
    GET      /api/attendance            Paginated, filtered history
    POST     /api/attendance/{id}/cancel  Cancel (refunds credit)
    GET      /api/attendance/{id}/logs  Audit trail
    GET      /api/subjects/{id}/eligible-students

  Scenarios:
    GET      /api/scenarios             List demo scenarios
    POST     /api/scenarios/load        Load a demo scenario
    POST     /api/reset                 Wipe all data (dev only)

ERROR HANDLING:
  Domain errors map to HTTP status by kind:
  - 400: Invalid input
  - 404: Unknown subject/student/teacher/purchase/attendance
  - 409: Insufficient credit, double cancel, deleting a paid purchase
  - 503: Store unavailable or retries exhausted
  - 500: Everything else
  Every error body carries a stable machine-readable "code" field.

SECURITY NOTE:
  No authentication middleware. Front the service with a gateway before
  exposing it.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/studyhall/credit-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Store  ledger.TxStore
	Log    *zap.Logger
}

func NewHandler(engine *ledger.Engine, store ledger.TxStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Store: store, Log: log}
}

// =============================================================================
// CATALOG
// =============================================================================

func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.Store.ListSubjects(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]SubjectDTO, 0, len(subjects))
	for i := range subjects {
		dtos = append(dtos, toSubjectDTO(&subjects[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Subject name is required", "invalid_input", nil)
		return
	}

	subject := &ledger.Subject{
		ID:          ledger.SubjectID(uuid.NewString()),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Color:       req.Color,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateSubject(r.Context(), subject); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubjectDTO(subject))
}

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.Store.ListPackages(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]PackageDTO, 0, len(packages))
	for i := range packages {
		dtos = append(dtos, toPackageDTO(&packages[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req CreatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Package name is required", "invalid_input", nil)
		return
	}
	if req.CreditCount <= 0 {
		writeError(w, http.StatusBadRequest, "credit_count must be positive", "invalid_input", nil)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid price", "invalid_input", err)
		return
	}
	// Reject unknown subjects up front; a package funding a ghost subject
	// would grant unusable credit.
	subjectIDs := make([]ledger.SubjectID, 0, len(req.SubjectIDs))
	for _, sid := range req.SubjectIDs {
		if _, err := h.Store.GetSubject(r.Context(), ledger.SubjectID(sid)); err != nil {
			h.respondError(w, err)
			return
		}
		subjectIDs = append(subjectIDs, ledger.SubjectID(sid))
	}

	pkg := &ledger.Package{
		ID:          ledger.PackageID(uuid.NewString()),
		Name:        strings.TrimSpace(req.Name),
		CreditCount: req.CreditCount,
		Price:       price,
		IsActive:    true,
		SubjectIDs:  subjectIDs,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreatePackage(r.Context(), pkg); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageDTO(pkg))
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.ListStudents(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]StudentDTO, 0, len(students))
	for i := range students {
		dtos = append(dtos, toStudentDTO(&students[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "full_name is required", "invalid_input", nil)
		return
	}

	student := &ledger.Student{
		ID:            ledger.StudentID(uuid.NewString()),
		FullName:      strings.TrimSpace(req.FullName),
		Nickname:      req.Nickname,
		Grade:         req.Grade,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.Store.CreateStudent(r.Context(), student); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentDTO(student))
}

func (h *Handler) GetStudentCredits(w http.ResponseWriter, r *http.Request) {
	id := ledger.StudentID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetStudent(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	credits, err := h.Engine.SubjectCredits(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]SubjectCreditDTO, 0, len(credits))
	for _, c := range credits {
		dtos = append(dtos, SubjectCreditDTO{
			SubjectID:   string(c.SubjectID),
			SubjectName: c.SubjectName,
			Remaining:   c.Remaining,
		})
	}
	writeJSON(w, http.StatusOK, CreditSummaryDTO{StudentID: string(id), Subjects: dtos})
}

func (h *Handler) ListTeachers(w http.ResponseWriter, r *http.Request) {
	teachers, err := h.Store.ListTeachers(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]TeacherDTO, 0, len(teachers))
	for i := range teachers {
		dtos = append(dtos, toTeacherDTO(&teachers[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	var req CreateTeacherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "full_name is required", "invalid_input", nil)
		return
	}

	teacher := &ledger.Teacher{
		ID:        ledger.TeacherID(uuid.NewString()),
		FullName:  strings.TrimSpace(req.FullName),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateTeacher(r.Context(), teacher); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeacherDTO(teacher))
}

// =============================================================================
// PURCHASES
// =============================================================================

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.Store.ListPurchases(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]PurchaseDTO, 0, len(purchases))
	for i := range purchases {
		dtos = append(dtos, toPurchaseDTO(&purchases[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	purchase, err := h.Engine.CreatePurchase(r.Context(),
		ledger.StudentID(req.StudentID), ledger.PackageID(req.PackageID))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseDTO(purchase))
}

// SettlePurchase marks the purchase paid and creates its credit grant.
// Safe to call twice: the second call returns the existing grant.
func (h *Handler) SettlePurchase(w http.ResponseWriter, r *http.Request) {
	id := ledger.PurchaseID(chi.URLParam(r, "id"))
	purchase, grant, err := h.Engine.SettlePurchase(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettleResponse{
		Purchase: toPurchaseDTO(purchase),
		Grant:    toGrantDTO(grant),
	})
}

func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	id := ledger.PurchaseID(chi.URLParam(r, "id"))
	if err := h.Engine.DeletePurchase(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": string(id)})
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	att, err := h.Engine.CheckIn(r.Context(), ledger.CheckInInput{
		StudentID:   ledger.StudentID(req.StudentID),
		SubjectID:   ledger.SubjectID(req.SubjectID),
		TeacherID:   ledger.TeacherID(req.TeacherID),
		CreditsUsed: req.CreditsUsed,
		Notes:       req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceDTO(att))
}

func (h *Handler) CancelAttendance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AttendanceID(chi.URLParam(r, "id"))
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}
	if strings.TrimSpace(req.CancelledBy) == "" {
		writeError(w, http.StatusBadRequest, "cancelled_by is required", "invalid_input", nil)
		return
	}
	att, err := h.Engine.Cancel(r.Context(), id, req.CancelledBy, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(att))
}

func (h *Handler) SearchAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	result, err := h.Engine.SearchAttendance(r.Context(), ledger.SearchAttendanceParams{
		Search:    q.Get("search"),
		SubjectID: ledger.SubjectID(q.Get("subject_id")),
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	dtos := make([]AttendanceRecordDTO, 0, len(result.Records))
	for i := range result.Records {
		dtos = append(dtos, toAttendanceRecordDTO(&result.Records[i]))
	}
	writeJSON(w, http.StatusOK, AttendancePageDTO{
		Records:    dtos,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PerPage:    result.PerPage,
	})
}

func (h *Handler) AttendanceLogs(w http.ResponseWriter, r *http.Request) {
	id := ledger.AttendanceID(chi.URLParam(r, "id"))
	logs, err := h.Engine.AttendanceLogs(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]AttendanceLogDTO, 0, len(logs))
	for i := range logs {
		dtos = append(dtos, toAttendanceLogDTO(&logs[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) EligibleStudents(w http.ResponseWriter, r *http.Request) {
	id := ledger.SubjectID(chi.URLParam(r, "id"))
	students, err := h.Engine.ListEligibleStudents(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dtos := make([]EligibleStudentDTO, 0, len(students))
	for _, s := range students {
		dtos = append(dtos, EligibleStudentDTO{
			StudentID:    string(s.StudentID),
			FullName:     s.FullName,
			Nickname:     s.Nickname,
			TotalCredits: s.TotalCredits,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// respondError translates domain errors into HTTP responses and logs the
// ones worth operator attention.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input", "invalid_input", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", "not_found", err)
	case errors.Is(err, ledger.ErrInsufficientCredit):
		writeError(w, http.StatusConflict, "Insufficient credit", "insufficient_credit", err)
	case errors.Is(err, ledger.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "Attendance already cancelled", "already_cancelled", err)
	case errors.Is(err, ledger.ErrPurchasePaid):
		writeError(w, http.StatusConflict, "Purchase already paid", "purchase_paid", err)
	case ledger.IsRetryable(err) || errors.Is(err, ledger.ErrStoreUnavailable):
		h.Log.Warn("request failed on store contention", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Temporarily unavailable, retry", "store_unavailable", err)
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", "internal", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
