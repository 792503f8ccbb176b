package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/application/service"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	svc      service.WorkflowService
	exporter Exporter
	health   HealthChecker
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc service.WorkflowService, exporter Exporter, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		svc:      svc,
		exporter: exporter,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

var statusByCode = map[string]int{
	"NOT_FOUND":                  http.StatusNotFound,
	"INVALID_INPUT":              http.StatusBadRequest,
	"INVALID_TRANSITION":         http.StatusUnprocessableEntity,
	"DUPLICATE_ASSOCIATION":      http.StatusConflict,
	"CONFLICTING_DEMO":           http.StatusConflict,
	"RESCHEDULE_ALREADY_PENDING": http.StatusConflict,
	"CONCURRENT_MODIFICATION":    http.StatusConflict,
	"DEMO_NOT_YET_ELAPSED":       http.StatusUnprocessableEntity,
	"ASSOCIATION_NOT_ASSIGNED":   http.StatusUnprocessableEntity,
	"REQUIREMENT_CLOSED":         http.StatusUnprocessableEntity,
}

// StatusFor returns the HTTP status of an error category code
func StatusFor(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (h *Handlers) fail(c *gin.Context, op string, err error) {
	cat := service.Classify(err)
	status := StatusFor(cat.Code)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err)
	} else {
		h.logger.Info("Request rejected", "operation", op, "code", cat.Code, "error", err.Error())
	}
	c.JSON(status, Response{Success: false, Error: cat.Message, Code: cat.Code})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg, Code: "INVALID_INPUT"})
}

// respond writes a versioned entity and its ETag
func respond(c *gin.Context, status int, data interface{}, version int64) {
	if version > 0 {
		c.Header("ETag", etag(version))
	}
	c.JSON(status, Response{Success: true, Data: data})
}

// options reads call options or writes a 400 and returns false
func options(c *gin.Context) ([]service.CallOption, bool) {
	opts, err := callOptions(c)
	if err != nil {
		badRequest(c, "If-Match must be a version number")
		return nil, false
	}
	return opts, true
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if h.health != nil {
		resp.Components = h.health.Health(c.Request.Context())
		for _, v := range resp.Components {
			if v != "ok" {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
	}
	c.JSON(status, Response{Success: status == http.StatusOK, Data: resp})
}

// ListRequirementsRequest represents query parameters for listing requirements
type ListRequirementsRequest struct {
	ParentID string `form:"parent_id"`
	Status   string `form:"status"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// ListRequirements handles GET /api/v1/requirements. Parents only see their own.
func (h *Handlers) ListRequirements(c *gin.Context) {
	var req ListRequirementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	actor := actorFrom(c)
	if actor.Role == entity.RoleParent {
		req.ParentID = actor.ID
	}

	list, err := h.svc.ListRequirements(c.Request.Context(), port.RequirementFilter{
		ParentID: req.ParentID,
		Status:   req.Status,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		h.fail(c, "ListRequirements", err)
		return
	}
	if list == nil {
		list = []*entity.Requirement{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// PostRequirement handles POST /api/v1/requirements
func (h *Handlers) PostRequirement(c *gin.Context) {
	var fields entity.RequirementFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	req, err := h.svc.PostRequirement(c.Request.Context(), actorFrom(c), fields, opts...)
	if err != nil {
		h.fail(c, "PostRequirement", err)
		return
	}
	respond(c, http.StatusCreated, req, req.Version)
}

// GetRequirement handles GET /api/v1/requirements/:id
func (h *Handlers) GetRequirement(c *gin.Context) {
	req, err := h.svc.GetRequirement(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetRequirement", err)
		return
	}
	respond(c, http.StatusOK, req, req.Version)
}

// UpdateRequirement handles PUT /api/v1/requirements/:id
func (h *Handlers) UpdateRequirement(c *gin.Context) {
	var fields entity.RequirementFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	req, err := h.svc.UpdateRequirement(c.Request.Context(), actorFrom(c), c.Param("id"), fields, opts...)
	if err != nil {
		h.fail(c, "UpdateRequirement", err)
		return
	}
	respond(c, http.StatusOK, req, req.Version)
}

// DeleteRequirement handles DELETE /api/v1/requirements/:id
func (h *Handlers) DeleteRequirement(c *gin.Context) {
	opts, valid := options(c)
	if !valid {
		return
	}
	if err := h.svc.DeleteRequirement(c.Request.Context(), actorFrom(c), c.Param("id"), opts...); err != nil {
		h.fail(c, "DeleteRequirement", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// CloseRequirement handles POST /api/v1/requirements/:id/close
func (h *Handlers) CloseRequirement(c *gin.Context) {
	var outcome service.CloseOutcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	req, err := h.svc.CloseRequirement(c.Request.Context(), actorFrom(c), c.Param("id"), outcome, opts...)
	if err != nil {
		h.fail(c, "CloseRequirement", err)
		return
	}
	respond(c, http.StatusOK, req, req.Version)
}

// ReopenRequirement handles POST /api/v1/requirements/:id/reopen
func (h *Handlers) ReopenRequirement(c *gin.Context) {
	opts, valid := options(c)
	if !valid {
		return
	}
	req, err := h.svc.ReopenRequirement(c.Request.Context(), actorFrom(c), c.Param("id"), opts...)
	if err != nil {
		h.fail(c, "ReopenRequirement", err)
		return
	}
	respond(c, http.StatusOK, req, req.Version)
}

// ListRequirementEvents handles GET /api/v1/requirements/:id/events
func (h *Handlers) ListRequirementEvents(c *gin.Context) {
	events, err := h.svc.ListEvents(c.Request.Context(), port.EventFilter{
		EntityType: entity.EntityRequirement,
		EntityID:   c.Param("id"),
	})
	if err != nil {
		h.fail(c, "ListRequirementEvents", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}

// RecordInterestRequest is the body of POST /requirements/:id/associations
type RecordInterestRequest struct {
	TutorID string `json:"tutor_id"`
	Kind    string `json:"kind" binding:"required,oneof=RECOMMENDED APPLIED"`
}

// RecordTutorInterest handles POST /api/v1/requirements/:id/associations
func (h *Handlers) RecordTutorInterest(c *gin.Context) {
	var body RecordInterestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "kind must be RECOMMENDED or APPLIED")
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	a, err := h.svc.RecordTutorInterest(c.Request.Context(), actorFrom(c), c.Param("id"), body.TutorID, body.Kind, opts...)
	if err != nil {
		h.fail(c, "RecordTutorInterest", err)
		return
	}
	respond(c, http.StatusCreated, a, a.Version)
}

// ListAssociations handles GET /api/v1/requirements/:id/associations
func (h *Handlers) ListAssociations(c *gin.Context) {
	list, err := h.svc.ListAssociations(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "ListAssociations", err)
		return
	}
	if list == nil {
		list = []*entity.TutorAssociation{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// ListTutorAssociations handles GET /api/v1/tutors/:tutorId/associations
func (h *Handlers) ListTutorAssociations(c *gin.Context) {
	list, err := h.svc.ListTutorAssociations(c.Request.Context(), c.Param("tutorId"))
	if err != nil {
		h.fail(c, "ListTutorAssociations", err)
		return
	}
	if list == nil {
		list = []*entity.TutorAssociation{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// ApplyToRecommendation handles POST .../associations/:tutorId/apply
func (h *Handlers) ApplyToRecommendation(c *gin.Context) {
	opts, valid := options(c)
	if !valid {
		return
	}
	a, err := h.svc.ApplyToRecommendation(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("tutorId"), opts...)
	if err != nil {
		h.fail(c, "ApplyToRecommendation", err)
		return
	}
	respond(c, http.StatusOK, a, a.Version)
}

// PromoteRequest is the body of POST .../associations/:tutorId/promote
type PromoteRequest struct {
	Target string `json:"target" binding:"required"`
}

// PromoteAssociation handles POST .../associations/:tutorId/promote
func (h *Handlers) PromoteAssociation(c *gin.Context) {
	var body PromoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "target is required")
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	a, err := h.svc.PromoteAssociation(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("tutorId"), body.Target, opts...)
	if err != nil {
		h.fail(c, "PromoteAssociation", err)
		return
	}
	respond(c, http.StatusOK, a, a.Version)
}

// ReasonRequest carries an optional free-text reason
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// bindReason accepts an empty body
func bindReason(c *gin.Context) (string, bool) {
	var body ReasonRequest
	if c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body")
		return "", false
	}
	return body.Reason, true
}

// RejectAssociation handles POST .../associations/:tutorId/reject
func (h *Handlers) RejectAssociation(c *gin.Context) {
	reason, valid := bindReason(c)
	if !valid {
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	a, err := h.svc.RejectAssociation(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("tutorId"), reason, opts...)
	if err != nil {
		h.fail(c, "RejectAssociation", err)
		return
	}
	respond(c, http.StatusOK, a, a.Version)
}

// WithdrawAssociation handles POST .../associations/:tutorId/withdraw
func (h *Handlers) WithdrawAssociation(c *gin.Context) {
	opts, valid := options(c)
	if !valid {
		return
	}
	a, err := h.svc.WithdrawAssociation(c.Request.Context(), actorFrom(c), c.Param("id"), c.Param("tutorId"), opts...)
	if err != nil {
		h.fail(c, "WithdrawAssociation", err)
		return
	}
	respond(c, http.StatusOK, a, a.Version)
}

// RejectOtherCandidates handles POST /api/v1/requirements/:id/reject-others
func (h *Handlers) RejectOtherCandidates(c *gin.Context) {
	opts, valid := options(c)
	if !valid {
		return
	}
	list, err := h.svc.RejectOtherCandidates(c.Request.Context(), actorFrom(c), c.Param("id"), opts...)
	if err != nil {
		h.fail(c, "RejectOtherCandidates", err)
		return
	}
	if list == nil {
		list = []*entity.TutorAssociation{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// ExportPipeline handles GET /api/v1/admin/reports/pipeline.xlsx
func (h *Handlers) ExportPipeline(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "reports are disabled", Code: "REPORTS_DISABLED"})
		return
	}
	var buf bytes.Buffer
	if err := h.exporter.Export(c.Request.Context(), &buf); err != nil {
		h.fail(c, "ExportPipeline", err)
		return
	}
	name := "pipeline-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
