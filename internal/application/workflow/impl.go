package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/record-workflow/internal/application/dispatcher"
	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/access"
	"github.com/garyjia/record-workflow/internal/domain/apperror"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/domain/event"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// engineImpl is the concrete implementation of WorkflowService
type engineImpl struct {
	registry  *kind.Registry
	repo      port.RecordRepository
	cache     port.ItemCache
	policy    *access.Policy
	validator port.FieldValidator
	ids       port.IDIssuer

	dispatcher dispatcher.Dispatcher
	txManager  port.TransactionManager
	metrics    port.Metrics
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher used for transition notifications
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithTransactionManager wraps each write in a transaction
func WithTransactionManager(tx port.TransactionManager) EngineOption {
	return func(e *engineImpl) {
		e.txManager = tx
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a workflow service. Every positional collaborator is required.
func NewEngine(
	registry *kind.Registry,
	repo port.RecordRepository,
	cache port.ItemCache,
	policy *access.Policy,
	validator port.FieldValidator,
	ids port.IDIssuer,
	opts ...EngineOption,
) (WorkflowService, error) {
	switch {
	case registry == nil:
		return nil, errors.New("workflow: kind registry is required")
	case repo == nil:
		return nil, errors.New("workflow: record repository is required")
	case cache == nil:
		return nil, errors.New("workflow: item cache is required")
	case policy == nil:
		return nil, errors.New("workflow: access policy is required")
	case validator == nil:
		return nil, errors.New("workflow: field validator is required")
	case ids == nil:
		return nil, errors.New("workflow: id issuer is required")
	}

	e := &engineImpl{
		registry:  registry,
		repo:      repo,
		cache:     cache,
		policy:    policy,
		validator: validator,
		ids:       ids,
		metrics:   port.NopMetrics{},
		logger:    nopLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

func (e *engineImpl) Submit(ctx context.Context, req SubmitRequest, actor entity.Actor) (res *Result, err error) {
	payload := entity.CloneMap(req.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	// The kind may also travel inside the payload, as form intake does
	kindName := req.Kind
	if k, ok := payload["kind"].(string); ok {
		if kindName == "" {
			kindName = k
		}
		delete(payload, "kind")
	}

	defer e.observe("submit", kindName, time.Now(), &err)

	d, err := e.descriptor(kindName)
	if err != nil {
		return nil, err
	}
	if actor.IsZero() {
		return nil, apperror.Validation(apperror.FieldError{Field: "actor", Message: "is required"}).WithOperation("submit")
	}
	if err := e.validateFields(d.Schema, payload); err != nil {
		return nil, err.WithOperation("submit")
	}

	if !e.policy.IsAllowed(actor, access.OpSubmit, nil) {
		return nil, apperror.Unauthorized(string(access.OpSubmit), actor.ID, actor.Role)
	}

	id := e.issueID(ctx, d.Name)
	now := e.now()
	start := d.Machine.Start()

	item := &entity.WorkflowItem{
		ID:          id,
		Kind:        d.Name,
		Status:      start.String(),
		Payload:     payload,
		SubmittedBy: actor,
		History: entity.History{}.Append(entity.AuditEntry{
			Status:    start.String(),
			Timestamp: now,
			Actor:     actor,
			Notes:     "submitted",
		}),
		CreatedAt:   now,
		LastUpdated: now,
	}

	if err := ctx.Err(); err != nil {
		return nil, apperror.Canceled("submit", err).WithItem(d.Name, id)
	}

	rec, err := entity.ToRecord(item)
	if err != nil {
		return nil, apperror.Persistence("encode item", err).WithItem(d.Name, id)
	}
	err = e.inTx(ctx, func(txCtx context.Context) error {
		_, err := e.repo.Insert(txCtx, d.Name, rec)
		return err
	})
	if err != nil {
		e.logger.Error("Failed to insert item", "kind", d.Name, "id", id, "error", err)
		return nil, apperror.Persistence("insert item", err).WithItem(d.Name, id)
	}

	e.cache.Put(ctx, port.CacheKey(d.Name, id), item)
	e.logger.Info("Item submitted", "kind", d.Name, "id", id, "actor", actor.ID)
	e.emit(ctx, event.TypeItemSubmitted, item, "", actor)

	return &Result{
		ID:      id,
		Kind:    d.Name,
		Status:  start,
		Message: fmt.Sprintf("%s %s submitted", d.Name, id),
	}, nil
}

func (e *engineImpl) Assign(ctx context.Context, kindName, id string, assignee *entity.Actor, by entity.Actor) (res *Result, err error) {
	defer e.observe("assign", kindName, time.Now(), &err)

	if assignee != nil && assignee.IsZero() {
		return nil, apperror.Validation(apperror.FieldError{Field: "assignee.id", Message: "is required"}).WithOperation("assign")
	}

	out, err := e.transition(ctx, mutation{
		operation: access.OpAssign,
		kind:      kindName,
		id:        id,
		actor:     by,
		eventType: event.TypeItemAssigned,
		target: func(d *kind.Descriptor, _ *entity.WorkflowItem) domainwf.State {
			return d.AssignState
		},
		apply: func(d *kind.Descriptor, item *entity.WorkflowItem) error {
			if assignee != nil {
				a := *assignee
				item.AssignedTo = &a
			} else {
				routed, ok := d.Routing.Route(item)
				if !ok {
					return apperror.Validationf("no assignee given and kind %s has no routing for this item", d.Name)
				}
				item.AssignedTo = &routed
			}
			// an assignee passes the assignee ownership check, so a shared
			// identity would hand that override to every caller behind it
			if item.AssignedTo.IsReserved() {
				return apperror.Validation(apperror.FieldError{Field: "assignee.id", Message: "cannot be a built-in identity"})
			}
			return nil
		},
		notes: func(item *entity.WorkflowItem) string {
			return "assigned to " + item.AssignedTo.ID
		},
		extra: func(item *entity.WorkflowItem) map[string]any {
			return map[string]any{
				"assignee": item.AssignedTo.ID,
				"routed":   assignee == nil,
			}
		},
	})
	if err != nil {
		return nil, err
	}

	res = out.result()
	res.Message = fmt.Sprintf("%s assigned to %s", out.item.ID, out.item.AssignedTo.DisplayName())
	return res, nil
}

func (e *engineImpl) UpdateStatus(ctx context.Context, kindName, id string, target domainwf.State, opts TransitionOptions) (res *Result, err error) {
	defer e.observe("update_status", kindName, time.Now(), &err)

	if !target.IsValid() {
		return nil, apperror.Validation(apperror.FieldError{Field: "status", Message: "is required"}).WithOperation("update_status")
	}

	out, err := e.transition(ctx, mutation{
		operation: access.OpUpdateStatus,
		kind:      kindName,
		id:        id,
		actor:     opts.Actor,
		eventType: event.TypeItemStatusChanged,
		target: func(*kind.Descriptor, *entity.WorkflowItem) domainwf.State {
			return target
		},
		notes: func(*entity.WorkflowItem) string {
			return opts.Notes
		},
	})
	if err != nil {
		return nil, err
	}

	res = out.result()
	res.Message = fmt.Sprintf("%s moved from %s to %s", out.item.ID, out.previous, target)

	if out.descriptor.EligibleForAutoApproval(out.previous, out.item) {
		approved, err := e.autoApprove(ctx, out)
		if err != nil {
			e.logger.Error("Auto-approval failed", "kind", kindName, "id", id, "error", err)
			res.Message += "; auto-approval did not complete"
			return res, nil
		}
		res = approved.result()
		res.Previous = out.previous
		res.Message = fmt.Sprintf("%s moved from %s to %s and was approved automatically", out.item.ID, out.previous, target)
	}

	return res, nil
}

func (e *engineImpl) Resolve(ctx context.Context, kindName, id string, resolution map[string]any, actor entity.Actor) (res *Result, err error) {
	defer e.observe("resolve", kindName, time.Now(), &err)

	d, err := e.descriptor(kindName)
	if err != nil {
		return nil, err
	}
	resolution = entity.CloneMap(resolution)
	if len(resolution) == 0 {
		return nil, apperror.Validation(apperror.FieldError{Field: "resolution", Message: "is required"}).WithOperation("resolve")
	}
	if err := e.validateFields(d.ResolutionSchema, resolution); err != nil {
		return nil, err.WithOperation("resolve")
	}

	out, err := e.transition(ctx, mutation{
		operation: access.OpResolve,
		kind:      kindName,
		id:        id,
		actor:     actor,
		eventType: event.TypeItemResolved,
		target: func(d *kind.Descriptor, _ *entity.WorkflowItem) domainwf.State {
			return d.ResolveTarget(resolution)
		},
		apply: func(_ *kind.Descriptor, item *entity.WorkflowItem) error {
			item.Resolution = resolution
			return nil
		},
		notes: func(*entity.WorkflowItem) string {
			return "resolved"
		},
		extra: func(*entity.WorkflowItem) map[string]any {
			return map[string]any{"resolution": entity.CloneMap(resolution)}
		},
	})
	if err != nil {
		return nil, err
	}

	res = out.result()
	res.Message = fmt.Sprintf("%s resolved as %s", out.item.ID, out.item.Status)
	return res, nil
}

// autoApprove performs the system transition from the routing state to the approve state
func (e *engineImpl) autoApprove(ctx context.Context, prev *outcome) (*outcome, error) {
	d := prev.descriptor
	from := domainwf.State(prev.item.Status)

	ok, err := d.Machine.CanTransition(from, d.ApproveState)
	if err != nil || !ok {
		return nil, apperror.InvalidTransition(from.String(), d.ApproveState.String()).WithItem(d.Name, prev.item.ID)
	}

	next := prev.item.Clone()
	next.Resolution = map[string]any{
		kind.FieldDecision: kind.DecisionApprove,
		kind.FieldSummary:  "approved automatically",
	}
	e.stamp(next, d.ApproveState, entity.SystemActor, "auto-approved", map[string]any{"rule": "auto_approve"})

	if err := e.persist(ctx, d, next); err != nil {
		return nil, err
	}
	e.metrics.ObserveTransition(d.Name, from.String(), d.ApproveState.String())
	e.logger.Info("Item auto-approved", "kind", d.Name, "id", next.ID)
	e.emit(ctx, event.TypeItemAutoApproved, next, from.String(), entity.SystemActor)

	return &outcome{descriptor: d, item: next, previous: from}, nil
}
