package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/application/service"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// SlotRequest describes a time slot by end time or by duration
type SlotRequest struct {
	StartAt         time.Time  `json:"start_at" binding:"required"`
	EndAt           *time.Time `json:"end_at"`
	DurationMinutes int        `json:"duration_minutes" binding:"omitempty,min=1"`
}

func (r SlotRequest) slot() (entity.Slot, bool) {
	if r.EndAt != nil {
		return entity.Slot{StartAt: r.StartAt, EndAt: *r.EndAt}, true
	}
	if r.DurationMinutes > 0 {
		return entity.NewSlot(r.StartAt, r.DurationMinutes), true
	}
	return entity.Slot{}, false
}

// DemoRequest is the body of POST /demos and POST /demo-requests
type DemoRequest struct {
	SlotRequest
	RequirementID string   `json:"requirement_id" binding:"required"`
	TutorID       string   `json:"tutor_id"`
	Subjects      []string `json:"subjects"`
	Mode          string   `json:"mode"`
	JoinLink      string   `json:"join_link"`
	Location      string   `json:"location"`
	FeeCents      *int64   `json:"fee_cents"`
}

func bindDemo(c *gin.Context) (service.DemoInput, bool) {
	var body DemoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "requirement_id and start_at are required")
		return service.DemoInput{}, false
	}
	slot, valid := body.slot()
	if !valid {
		badRequest(c, "end_at or duration_minutes is required")
		return service.DemoInput{}, false
	}
	return service.DemoInput{
		RequirementID: body.RequirementID,
		TutorID:       body.TutorID,
		Subjects:      body.Subjects,
		Slot:          slot,
		Mode:          body.Mode,
		JoinLink:      body.JoinLink,
		Location:      body.Location,
		FeeCents:      body.FeeCents,
	}, true
}

// ScheduleDemo handles POST /api/v1/demos
func (h *Handlers) ScheduleDemo(c *gin.Context) {
	in, valid := bindDemo(c)
	if !valid {
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	d, err := h.svc.ScheduleDemo(c.Request.Context(), actorFrom(c), in, opts...)
	if err != nil {
		h.fail(c, "ScheduleDemo", err)
		return
	}
	respond(c, http.StatusCreated, d, d.Version)
}

// RequestDemo handles POST /api/v1/demo-requests
func (h *Handlers) RequestDemo(c *gin.Context) {
	in, valid := bindDemo(c)
	if !valid {
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	d, err := h.svc.RequestDemo(c.Request.Context(), actorFrom(c), in, opts...)
	if err != nil {
		h.fail(c, "RequestDemo", err)
		return
	}
	respond(c, http.StatusCreated, d, d.Version)
}

// GetDemo handles GET /api/v1/demos/:id
func (h *Handlers) GetDemo(c *gin.Context) {
	d, err := h.svc.GetDemo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetDemo", err)
		return
	}
	respond(c, http.StatusOK, d, d.Version)
}

// ListDemos handles GET /api/v1/requirements/:id/demos
func (h *Handlers) ListDemos(c *gin.Context) {
	list, err := h.svc.ListDemos(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "ListDemos", err)
		return
	}
	if list == nil {
		list = []*entity.DemoSession{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// demoAction runs a body-less demo transition
func (h *Handlers) demoAction(op string, fn func(c *gin.Context, opts []service.CallOption) (*entity.DemoSession, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts, valid := options(c)
		if !valid {
			return
		}
		d, err := fn(c, opts)
		if err != nil {
			h.fail(c, op, err)
			return
		}
		respond(c, http.StatusOK, d, d.Version)
	}
}

// ConfirmDemo handles POST /api/v1/demos/:id/confirm
func (h *Handlers) ConfirmDemo(c *gin.Context) {
	h.demoAction("ConfirmDemo", func(c *gin.Context, opts []service.CallOption) (*entity.DemoSession, error) {
		return h.svc.ConfirmDemo(c.Request.Context(), actorFrom(c), c.Param("id"), opts...)
	})(c)
}

// CompleteDemo handles POST /api/v1/demos/:id/complete
func (h *Handlers) CompleteDemo(c *gin.Context) {
	h.demoAction("CompleteDemo", func(c *gin.Context, opts []service.CallOption) (*entity.DemoSession, error) {
		return h.svc.CompleteDemo(c.Request.Context(), actorFrom(c), c.Param("id"), opts...)
	})(c)
}

// CancelDemo handles POST /api/v1/demos/:id/cancel
func (h *Handlers) CancelDemo(c *gin.Context) {
	reason, valid := bindReason(c)
	if !valid {
		return
	}
	h.demoAction("CancelDemo", func(c *gin.Context, opts []service.CallOption) (*entity.DemoSession, error) {
		return h.svc.CancelDemo(c.Request.Context(), actorFrom(c), c.Param("id"), reason, opts...)
	})(c)
}

// RescheduleRequest is the body of POST /demos/:id/reschedule
type RescheduleRequest struct {
	SlotRequest
	Reason string `json:"reason"`
}

// RequestReschedule handles POST /api/v1/demos/:id/reschedule
func (h *Handlers) RequestReschedule(c *gin.Context) {
	var body RescheduleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "start_at is required")
		return
	}
	slot, valid := body.slot()
	if !valid {
		badRequest(c, "end_at or duration_minutes is required")
		return
	}
	h.demoAction("RequestReschedule", func(c *gin.Context, opts []service.CallOption) (*entity.DemoSession, error) {
		return h.svc.RequestReschedule(c.Request.Context(), actorFrom(c), c.Param("id"), slot, body.Reason, opts...)
	})(c)
}

// ResolveRequest is the body of POST /demos/:id/reschedule/resolve
type ResolveRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// ResolveReschedule handles POST /api/v1/demos/:id/reschedule/resolve
func (h *Handlers) ResolveReschedule(c *gin.Context) {
	var body ResolveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "accept is required")
		return
	}
	h.demoAction("ResolveReschedule", func(c *gin.Context, opts []service.CallOption) (*entity.DemoSession, error) {
		return h.svc.ResolveReschedule(c.Request.Context(), actorFrom(c), c.Param("id"), *body.Accept, opts...)
	})(c)
}

// CreateClass handles POST /api/v1/classes
func (h *Handlers) CreateClass(c *gin.Context) {
	var in service.CreateClassInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	cl, err := h.svc.CreateClass(c.Request.Context(), actorFrom(c), in, opts...)
	if err != nil {
		h.fail(c, "CreateClass", err)
		return
	}
	respond(c, http.StatusCreated, cl, cl.Version)
}

// GetClass handles GET /api/v1/classes/:id
func (h *Handlers) GetClass(c *gin.Context) {
	cl, err := h.svc.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetClass", err)
		return
	}
	respond(c, http.StatusOK, cl, cl.Version)
}

// ListClasses handles GET /api/v1/requirements/:id/classes
func (h *Handlers) ListClasses(c *gin.Context) {
	list, err := h.svc.ListClasses(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "ListClasses", err)
		return
	}
	if list == nil {
		list = []*entity.Class{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// CancelClass handles POST /api/v1/classes/:id/cancel
func (h *Handlers) CancelClass(c *gin.Context) {
	reason, valid := bindReason(c)
	if !valid {
		return
	}
	opts, valid := options(c)
	if !valid {
		return
	}
	cl, err := h.svc.CancelClass(c.Request.Context(), actorFrom(c), c.Param("id"), reason, opts...)
	if err != nil {
		h.fail(c, "CancelClass", err)
		return
	}
	respond(c, http.StatusOK, cl, cl.Version)
}

// ListEventsRequest represents query parameters for listing events
type ListEventsRequest struct {
	EntityType string `form:"entity_type"`
	EntityID   string `form:"entity_id"`
	Limit      int    `form:"limit"`
}

// ListEvents handles GET /api/v1/events
func (h *Handlers) ListEvents(c *gin.Context) {
	var req ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	events, err := h.svc.ListEvents(c.Request.Context(), port.EventFilter{
		EntityType: entity.EntityType(req.EntityType),
		EntityID:   req.EntityID,
		Limit:      req.Limit,
	})
	if err != nil {
		h.fail(c, "ListEvents", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}
