package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/record-workflow/internal/domain/access"
	"github.com/garyjia/record-workflow/internal/domain/apperror"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
)

func (e *engineImpl) GetByID(ctx context.Context, kindName, id string) (item *entity.WorkflowItem, err error) {
	defer e.observe("get", kindName, time.Now(), &err)

	d, err := e.descriptor(kindName)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperror.Validation(apperror.FieldError{Field: "id", Message: "is required"}).WithOperation("get")
	}
	return e.load(ctx, d, id)
}

func (e *engineImpl) ListByStatus(ctx context.Context, kindName string, status domainwf.State, filter ListFilter, by entity.Actor) (items []*entity.WorkflowItem, err error) {
	defer e.observe("list_by_status", kindName, time.Now(), &err)

	d, err := e.descriptor(kindName)
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, apperror.Validation(apperror.FieldError{Field: "status", Message: "is required"}).WithOperation("list_by_status")
	}
	if !e.policy.IsAllowed(by, access.OpViewAll, nil) {
		return nil, apperror.Unauthorized(string(access.OpViewAll), by.ID, by.Role)
	}

	return e.find(ctx, d.Name, map[string]string{entity.ColumnStatus: status.String()}, filter)
}

func (e *engineImpl) ListAssignedTo(ctx context.Context, kindName, identity string, filter ListFilter, by entity.Actor) (items []*entity.WorkflowItem, err error) {
	defer e.observe("list_assigned", kindName, time.Now(), &err)

	d, err := e.descriptor(kindName)
	if err != nil {
		return nil, err
	}
	if identity == "" {
		return nil, apperror.Validation(apperror.FieldError{Field: "assigned_to", Message: "is required"}).WithOperation("list_assigned")
	}

	// An actor may always list their own queue through the assigned-actor override
	owned := &entity.WorkflowItem{AssignedTo: &entity.Actor{ID: identity}}
	if !e.policy.IsAllowed(by, access.OpViewAssigned, owned) {
		return nil, apperror.Unauthorized(string(access.OpViewAssigned), by.ID, by.Role)
	}

	return e.find(ctx, d.Name, map[string]string{entity.ColumnAssignedTo: identity}, filter)
}

func (e *engineImpl) find(ctx context.Context, kindName string, predicate map[string]string, filter ListFilter) ([]*entity.WorkflowItem, error) {
	records, err := e.repo.FindWhere(ctx, kindName, predicate)
	if err != nil {
		return nil, apperror.Persistence("find items", err).WithItem(kindName, "")
	}

	items := make([]*entity.WorkflowItem, 0, len(records))
	for _, rec := range records {
		item, err := entity.FromRecord(rec)
		if err != nil {
			return nil, apperror.Persistence("decode item", err).WithItem(kindName, rec[entity.ColumnID])
		}
		if !matchesPayload(item, filter.Payload) {
			continue
		}
		items = append(items, item)
	}

	return paginate(items, filter.Offset, filter.Limit), nil
}

func matchesPayload(item *entity.WorkflowItem, want map[string]string) bool {
	for field, value := range want {
		got, ok := item.Payload[field]
		if !ok || fmt.Sprint(got) != value {
			return false
		}
	}
	return true
}

func paginate(items []*entity.WorkflowItem, offset, limit int) []*entity.WorkflowItem {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []*entity.WorkflowItem{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
