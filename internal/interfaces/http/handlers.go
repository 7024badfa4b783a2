package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/record-workflow/internal/application/workflow"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
	"github.com/garyjia/record-workflow/pkg/utils"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	// Query parameters prefixed with this select payload filters, e.g. f.priority=high
	payloadFilterPrefix = "f."
)

// Form fields naming an anonymous submitter; they are not part of the payload
var submitterFormFields = []string{"submitter_id", "submitter_name", "submitter_contact"}

// HealthFunc reports component health
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflow workflow.WorkflowService
	registry *kind.Registry
	health   HealthFunc
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(wf workflow.WorkflowService, registry *kind.Registry, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		workflow: wf,
		registry: registry,
		health:   health,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// SubmitRequest is the body of POST /api/v1/items/:kind
type SubmitRequest struct {
	Payload     map[string]any `json:"payload" binding:"required"`
	SubmittedBy *entity.Actor  `json:"submitted_by"`
}

// AssignRequest is the body of POST .../assign
type AssignRequest struct {
	Assignee *entity.Actor `json:"assignee"`
}

// StatusRequest is the body of POST .../status
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// ResolveRequest is the body of POST .../resolve
type ResolveRequest struct {
	Resolution map[string]any `json:"resolution" binding:"required"`
}

// ListRequest represents query parameters for listing items
type ListRequest struct {
	Status     string `form:"status"`
	AssignedTo string `form:"assigned_to"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		resp.Components = details
		if !healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    resp,
	})
}

// Submit handles POST /api/v1/items/:kind
func (h *Handlers) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid submit body", "error", err)
		badRequest(c, "invalid request body")
		return
	}

	actor := submitter(actorFrom(c), req.SubmittedBy)
	res, err := h.workflow.Submit(c.Request.Context(), workflow.SubmitRequest{
		Kind:    c.Param("kind"),
		Payload: req.Payload,
	}, actor)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, res)
}

// SubmitForm handles POST /api/v1/forms/:kind. Form fields are matched to
// payload fields by name or alias.
func (h *Handlers) SubmitForm(c *gin.Context) {
	kindName := c.Param("kind")
	d, found := h.registry.Get(kindName)
	if !found {
		badRequest(c, "unknown kind "+strconv.Quote(kindName))
		return
	}

	if err := c.Request.ParseForm(); err != nil {
		badRequest(c, "invalid form body")
		return
	}
	values := make(map[string]string, len(c.Request.PostForm))
	for key, vs := range c.Request.PostForm {
		if len(vs) > 0 {
			values[key] = vs[0]
		}
	}
	values = utils.SanitizeForm(values)

	var declared *entity.Actor
	if id := values["submitter_id"]; id != "" {
		declared = &entity.Actor{ID: id, Name: values["submitter_name"], Contact: values["submitter_contact"]}
	}
	for _, f := range submitterFormFields {
		delete(values, f)
	}

	actor := submitter(actorFrom(c), declared)
	res, err := h.workflow.Submit(c.Request.Context(), workflow.SubmitRequest{
		Kind:    d.Name,
		Payload: d.Schema.FromForm(values),
	}, actor)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, res)
}

// GetItem handles GET /api/v1/items/:kind/:id
func (h *Handlers) GetItem(c *gin.Context) {
	item, err := h.workflow.GetByID(c.Request.Context(), c.Param("kind"), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, item)
}

// ListItems handles GET /api/v1/items/:kind. Exactly one of status and
// assigned_to selects the listing.
func (h *Handlers) ListItems(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		badRequest(c, "invalid query parameters")
		return
	}

	// Set defaults
	if req.Limit <= 0 || req.Limit > maxLimit {
		req.Limit = defaultLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	filter := workflow.ListFilter{Limit: req.Limit, Offset: req.Offset}
	for key, vs := range c.Request.URL.Query() {
		if field, found := strings.CutPrefix(key, payloadFilterPrefix); found && field != "" && len(vs) > 0 {
			if filter.Payload == nil {
				filter.Payload = make(map[string]string)
			}
			filter.Payload[field] = vs[0]
		}
	}

	var (
		items []*entity.WorkflowItem
		err   error
	)
	actor := actorFrom(c)
	kindName := c.Param("kind")

	switch {
	case req.Status != "" && req.AssignedTo != "":
		badRequest(c, "status and assigned_to are mutually exclusive")
		return
	case req.AssignedTo != "":
		items, err = h.workflow.ListAssignedTo(c.Request.Context(), kindName, req.AssignedTo, filter, actor)
	case req.Status != "":
		items, err = h.workflow.ListByStatus(c.Request.Context(), kindName, domainwf.State(req.Status), filter, actor)
	default:
		badRequest(c, "one of status or assigned_to is required")
		return
	}
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if items == nil {
		items = []*entity.WorkflowItem{}
	}

	respond(c, http.StatusOK, gin.H{
		"items":  items,
		"limit":  req.Limit,
		"offset": req.Offset,
	})
}

// Assign handles POST /api/v1/items/:kind/:id/assign
func (h *Handlers) Assign(c *gin.Context) {
	var req AssignRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	res, err := h.workflow.Assign(c.Request.Context(), c.Param("kind"), c.Param("id"), req.Assignee, actorFrom(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// UpdateStatus handles POST /api/v1/items/:kind/:id/status
func (h *Handlers) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.workflow.UpdateStatus(c.Request.Context(), c.Param("kind"), c.Param("id"),
		domainwf.State(req.Status), workflow.TransitionOptions{Actor: actorFrom(c), Notes: req.Notes})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// Resolve handles POST /api/v1/items/:kind/:id/resolve
func (h *Handlers) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	res, err := h.workflow.Resolve(c.Request.Context(), c.Param("kind"), c.Param("id"), req.Resolution, actorFrom(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, res)
}

// submitter picks the submitting actor. Authenticated callers are always
// themselves; anonymous callers may name themselves but keep the public role.
func submitter(caller entity.Actor, declared *entity.Actor) entity.Actor {
	if !isAnonymous(caller) || declared == nil || declared.IsZero() {
		return caller
	}
	return entity.Actor{
		ID:      utils.SanitizeString(declared.ID),
		Name:    utils.SanitizeString(declared.Name),
		Contact: utils.SanitizeString(declared.Contact),
		Role:    entity.RolePublic,
	}
}
