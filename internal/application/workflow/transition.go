package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/access"
	"github.com/garyjia/record-workflow/internal/domain/apperror"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/domain/event"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
)

// mutation describes one guarded transition
type mutation struct {
	operation access.Operation
	kind      string
	id        string
	actor     entity.Actor
	eventType event.Type
	target    func(d *kind.Descriptor, item *entity.WorkflowItem) domainwf.State
	apply     func(d *kind.Descriptor, item *entity.WorkflowItem) error
	notes     func(item *entity.WorkflowItem) string
	extra     func(item *entity.WorkflowItem) map[string]any
}

// outcome is a committed transition
type outcome struct {
	descriptor *kind.Descriptor
	item       *entity.WorkflowItem
	previous   domainwf.State
}

func (o *outcome) result() *Result {
	r := &Result{
		ID:         o.item.ID,
		Kind:       o.item.Kind,
		Status:     domainwf.State(o.item.Status),
		Previous:   o.previous,
		Resolution: entity.CloneMap(o.item.Resolution),
	}
	if o.item.AssignedTo != nil {
		a := *o.item.AssignedTo
		r.AssignedTo = &a
	}
	return r
}

// transition runs the shared pipeline: validate, load, authorize, guard,
// mutate with audit, persist, cache, notify
func (e *engineImpl) transition(ctx context.Context, m mutation) (*outcome, error) {
	op := string(m.operation)

	d, err := e.descriptor(m.kind)
	if err != nil {
		return nil, err
	}
	if m.id == "" {
		return nil, apperror.Validation(apperror.FieldError{Field: "id", Message: "is required"}).WithOperation(op)
	}
	if m.actor.IsZero() {
		return nil, apperror.Validation(apperror.FieldError{Field: "actor", Message: "is required"}).WithOperation(op)
	}

	current, err := e.load(ctx, d, m.id)
	if err != nil {
		return nil, err
	}

	if !e.policy.IsAllowed(m.actor, m.operation, current) {
		return nil, apperror.Unauthorized(op, m.actor.ID, m.actor.Role).WithItem(d.Name, m.id)
	}

	previous := domainwf.State(current.Status)
	target := m.target(d, current)
	allowed, err := d.Machine.CanTransition(previous, target)
	if err != nil || !allowed {
		terr := apperror.InvalidTransition(previous.String(), target.String()).WithItem(d.Name, m.id).WithOperation(op)
		if err != nil {
			terr.Err = err
		}
		return nil, terr
	}

	next := current.Clone()
	if m.apply != nil {
		if err := m.apply(d, next); err != nil {
			return nil, withContext(err, d.Name, m.id, op)
		}
	}
	if target == d.Machine.Start() {
		next.AssignedTo = nil
	}
	if err := d.CheckGuards(next, target); err != nil {
		return nil, withContext(err, d.Name, m.id, op)
	}

	var notes string
	if m.notes != nil {
		notes = m.notes(next)
	}
	var extra map[string]any
	if m.extra != nil {
		extra = m.extra(next)
	}
	e.stamp(next, target, m.actor, notes, extra)

	if err := e.persist(ctx, d, next); err != nil {
		return nil, err
	}

	e.metrics.ObserveTransition(d.Name, previous.String(), target.String())
	e.logger.Info("Item transitioned",
		"kind", d.Name,
		"id", next.ID,
		"from", previous,
		"to", target,
		"actor", m.actor.ID,
	)
	e.emit(ctx, m.eventType, next, previous.String(), m.actor)

	return &outcome{descriptor: d, item: next, previous: previous}, nil
}

// stamp sets the new status and appends the matching audit entry
func (e *engineImpl) stamp(item *entity.WorkflowItem, target domainwf.State, actor entity.Actor, notes string, extra map[string]any) {
	now := e.now()
	if !now.After(item.LastUpdated) {
		now = item.LastUpdated.Add(time.Nanosecond)
	}
	item.Status = target.String()
	item.LastUpdated = now
	item.History = item.History.Append(entity.AuditEntry{
		Status:    target.String(),
		Timestamp: now,
		Actor:     actor,
		Notes:     notes,
		Extra:     extra,
	})
}

// persist writes the item, then refreshes the cache with the written value.
// Cancellation observed here aborts without side effects.
func (e *engineImpl) persist(ctx context.Context, d *kind.Descriptor, item *entity.WorkflowItem) error {
	if err := ctx.Err(); err != nil {
		return apperror.Canceled("persist", err).WithItem(d.Name, item.ID)
	}

	rec, err := entity.ToRecord(item)
	if err != nil {
		return apperror.Persistence("encode item", err).WithItem(d.Name, item.ID)
	}
	delete(rec, entity.ColumnID)
	delete(rec, entity.ColumnKind)
	delete(rec, entity.ColumnCreatedAt)
	delete(rec, entity.ColumnSubmittedBy)

	err = e.inTx(ctx, func(txCtx context.Context) error {
		return e.repo.UpdateWhere(txCtx, d.Name, entity.ColumnID, item.ID, rec)
	})
	if err != nil {
		e.logger.Error("Failed to persist item", "kind", d.Name, "id", item.ID, "error", err)
		if errors.Is(err, port.ErrNoMatch) {
			return apperror.NotFound(d.Name, item.ID)
		}
		return apperror.Persistence("update item", err).WithItem(d.Name, item.ID)
	}

	e.cache.Put(ctx, port.CacheKey(d.Name, item.ID), item)
	return nil
}

// load returns the item from cache, falling back to the repository
func (e *engineImpl) load(ctx context.Context, d *kind.Descriptor, id string) (*entity.WorkflowItem, error) {
	key := port.CacheKey(d.Name, id)
	if item, ok := e.cache.Get(ctx, key); ok {
		e.metrics.ObserveCache(true)
		return item, nil
	}
	e.metrics.ObserveCache(false)

	rec, err := e.repo.FindByID(ctx, d.Name, id)
	if err != nil {
		if errors.Is(err, port.ErrRecordNotFound) {
			return nil, apperror.NotFound(d.Name, id)
		}
		return nil, apperror.Persistence("load item", err).WithItem(d.Name, id)
	}

	item, err := entity.FromRecord(rec)
	if err != nil {
		return nil, apperror.Persistence("decode item", err).WithItem(d.Name, id)
	}

	e.cache.Put(ctx, key, item)
	return item, nil
}

// emit dispatches a transition event unless the caller already gave up
func (e *engineImpl) emit(ctx context.Context, t event.Type, item *entity.WorkflowItem, previous string, actor entity.Actor) {
	if e.dispatcher == nil {
		return
	}
	if ctx.Err() != nil {
		e.logger.Info("Notification suppressed, context done after persistence",
			"kind", item.Kind,
			"id", item.ID,
			"event_type", t,
		)
		return
	}
	e.dispatcher.DispatchAsync(ctx, event.NewEvent(t, item, previous, actor))
}

func (e *engineImpl) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.txManager == nil {
		return fn(ctx)
	}
	return e.txManager.WithTransaction(ctx, fn)
}

func (e *engineImpl) descriptor(name string) (*kind.Descriptor, error) {
	if name == "" {
		return nil, apperror.Validation(apperror.FieldError{Field: "kind", Message: "is required"})
	}
	d, ok := e.registry.Get(name)
	if !ok {
		return nil, apperror.Validation(apperror.FieldError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", name)})
	}
	return d, nil
}

func (e *engineImpl) validateFields(schema kind.Schema, values map[string]any) *apperror.Error {
	var problems []apperror.FieldError
	for _, field := range e.validator.AssertRequired(values, schema.RequiredFields()) {
		problems = append(problems, apperror.FieldError{Field: field, Message: "is required"})
	}
	problems = append(problems, schema.Check(values, e.validator)...)
	if len(problems) > 0 {
		return apperror.Validation(problems...)
	}
	return nil
}

// issueID asks the issuer for an id and falls back to a kind-prefixed timestamp
func (e *engineImpl) issueID(ctx context.Context, kindName string) string {
	id, err := e.ids.Next(ctx, kindName)
	if err == nil && id != "" {
		return id
	}
	fallback := fmt.Sprintf("%s-%d", kindName, e.now().UnixNano())
	e.logger.Error("ID issuer failed, using fallback id", "kind", kindName, "fallback", fallback, "error", err)
	return fallback
}

func (e *engineImpl) observe(op, kindName string, start time.Time, err *error) {
	code := "OK"
	if *err != nil {
		code = string(apperror.CodeOf(*err))
		if code == "" {
			code = "UNKNOWN"
		}
	}
	e.metrics.ObserveOperation(op, kindName, code, time.Since(start))
}

func withContext(err error, kindName, id, op string) error {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		if ae.Kind == "" {
			ae.Kind = kindName
		}
		if ae.ItemID == "" {
			ae.ItemID = id
		}
		if ae.Operation == "" {
			ae.Operation = op
		}
		return ae
	}
	return err
}
