package workflow

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/record-workflow/internal/application/cache"
	"github.com/garyjia/record-workflow/internal/application/dispatcher"
	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/application/service"
	"github.com/garyjia/record-workflow/internal/domain/access"
	"github.com/garyjia/record-workflow/internal/domain/apperror"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/domain/event"
	"github.com/garyjia/record-workflow/internal/domain/kind"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
	"github.com/garyjia/record-workflow/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations

type countingRepo struct {
	*memory.Store
	findByID  atomic.Int32
	updates   atomic.Int32
	insertErr error
	updateErr error
	onUpdate  func()
}

func (r *countingRepo) Insert(ctx context.Context, k string, rec entity.Record) (string, error) {
	if r.insertErr != nil {
		return "", r.insertErr
	}
	return r.Store.Insert(ctx, k, rec)
}

func (r *countingRepo) UpdateWhere(ctx context.Context, k, field, value string, patch entity.Record) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates.Add(1)
	if err := r.Store.UpdateWhere(ctx, k, field, value, patch); err != nil {
		return err
	}
	if r.onUpdate != nil {
		r.onUpdate()
	}
	return nil
}

func (r *countingRepo) FindByID(ctx context.Context, k, id string) (entity.Record, error) {
	r.findByID.Add(1)
	return r.Store.FindByID(ctx, k, id)
}

type stubValidator struct{}

func (stubValidator) AssertRequired(record map[string]any, fields []string) []string {
	var missing []string
	for _, f := range fields {
		v, ok := record[f]
		if s, isString := v.(string); !ok || v == nil || (isString && strings.TrimSpace(s) == "") {
			missing = append(missing, f)
		}
	}
	return missing
}

func (stubValidator) IsValidEmail(v string) bool { return strings.Contains(v, "@") }
func (stubValidator) IsValidPhone(v string) bool { return strings.HasPrefix(v, "+") }

type sequenceIssuer struct {
	n   atomic.Int32
	err error
}

func (s *sequenceIssuer) Next(ctx context.Context, k string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return k + "-" + strconv.Itoa(int(s.n.Add(1))), nil
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type eventLog struct {
	mu     sync.Mutex
	events []*event.Event
}

func (l *eventLog) handle(ctx context.Context, evt *event.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return nil
}

func (l *eventLog) types() []event.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]event.Type, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

var (
	admin    = entity.Actor{ID: "admin-1", Name: "Admin", Role: entity.RoleAdmin}
	manager  = entity.Actor{ID: "mgr-1", Name: "Mia", Role: entity.RoleManager, Contact: "mia@example.com"}
	customer = entity.Actor{ID: "cust-1", Name: "Ana", Role: entity.RoleCustomer, Contact: "ana@example.com"}
	engineer = entity.Actor{ID: "eng-1", Name: "Eli", Role: entity.RoleEngineer, Contact: "ou_eng1"}
	outsider = entity.Actor{ID: "eng-2", Name: "Oz", Role: entity.RoleEngineer, Contact: "ou_eng2"}
)

type harness struct {
	svc        WorkflowService
	repo       *countingRepo
	cache      *cache.MemoryCache
	ids        *sequenceIssuer
	dispatcher dispatcher.Dispatcher
	events     *eventLog
}

// drain waits for async handlers; the harness dispatcher cannot be used afterwards
func (h *harness) drain() {
	h.dispatcher.Close()
}

func newRegistry(t *testing.T) *kind.Registry {
	t.Helper()
	routing := kind.Routing{
		Field: kind.FieldPriority,
		Pools: map[string]entity.Actor{
			"high":     engineer,
			"critical": engineer,
		},
		Default: &entity.Actor{ID: "triage", Contact: "triage@example.com", Role: entity.RoleAgent},
	}
	r, err := kind.NewRegistry(
		kind.NewDisputeKind(kind.KindTechnical, routing, nil),
		kind.NewDisputeKind(kind.KindBilling, kind.Routing{}, nil),
		kind.NewOrderKind(kind.KindOrderRetail, kind.Routing{Default: &manager}, nil, kind.VerifiedSmallOrder(50)),
	)
	require.NoError(t, err)
	return r
}

func newHarness(t *testing.T, extra ...EngineOption) *harness {
	t.Helper()

	h := &harness{
		repo:       &countingRepo{Store: memory.NewStore()},
		cache:      cache.NewMemoryCache(cache.WithTTL(time.Hour), cache.WithCapacity(100)),
		ids:        &sequenceIssuer{},
		dispatcher: dispatcher.NewDispatcher(),
		events:     &eventLog{},
	}
	h.dispatcher.SubscribeAll("recorder", h.events.handle)

	clock := &tickingClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	opts := append([]EngineOption{WithDispatcher(h.dispatcher), WithClock(clock.Now)}, extra...)

	svc, err := NewEngine(newRegistry(t), h.repo, h.cache, access.NewPolicy(access.DefaultTable()), stubValidator{}, h.ids, opts...)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func technicalPayload() map[string]any {
	return map[string]any{"title": "T", "description": "D", "priority": "high"}
}

func (h *harness) submitTechnical(t *testing.T) string {
	t.Helper()
	res, err := h.svc.Submit(context.Background(), SubmitRequest{Kind: kind.KindTechnical, Payload: technicalPayload()}, customer)
	require.NoError(t, err)
	return res.ID
}

func (h *harness) stored(t *testing.T, k, id string) *entity.WorkflowItem {
	t.Helper()
	rec, err := h.repo.Store.FindByID(context.Background(), k, id)
	require.NoError(t, err)
	item, err := entity.FromRecord(rec)
	require.NoError(t, err)
	return item
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	reg := newRegistry(t)
	policy := access.NewPolicy(access.DefaultTable())
	repo := memory.NewStore()
	c := cache.NewMemoryCache()

	_, err := NewEngine(nil, repo, c, policy, stubValidator{}, &sequenceIssuer{})
	assert.Error(t, err)
	_, err = NewEngine(reg, nil, c, policy, stubValidator{}, &sequenceIssuer{})
	assert.Error(t, err)
	_, err = NewEngine(reg, repo, nil, policy, stubValidator{}, &sequenceIssuer{})
	assert.Error(t, err)
	_, err = NewEngine(reg, repo, c, nil, stubValidator{}, &sequenceIssuer{})
	assert.Error(t, err)
	_, err = NewEngine(reg, repo, c, policy, nil, &sequenceIssuer{})
	assert.Error(t, err)
	_, err = NewEngine(reg, repo, c, policy, stubValidator{}, nil)
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Submit(context.Background(), SubmitRequest{Kind: kind.KindTechnical, Payload: technicalPayload()}, customer)
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, domainwf.StateSubmitted, res.Status)
	assert.Equal(t, "technical-1", res.ID)

	item := h.stored(t, kind.KindTechnical, res.ID)
	assert.Equal(t, "submitted", item.Status)
	require.Len(t, item.History, 1)
	assert.Equal(t, "submitted", item.History[0].Status)
	assert.Equal(t, customer, item.SubmittedBy)
	assert.NoError(t, item.CheckAuditInvariant())

	cached, ok := h.cache.Get(context.Background(), port.CacheKey(kind.KindTechnical, res.ID))
	require.True(t, ok)
	assert.Equal(t, item.Status, cached.Status)

	assert.Equal(t, []event.Type{event.TypeItemSubmitted}, h.events.types())
}

func TestSubmit_KindInsidePayload(t *testing.T) {
	h := newHarness(t)

	payload := technicalPayload()
	payload["kind"] = kind.KindTechnical

	res, err := h.svc.Submit(context.Background(), SubmitRequest{Payload: payload}, customer)
	require.NoError(t, err)
	assert.Equal(t, kind.KindTechnical, res.Kind)

	item := h.stored(t, kind.KindTechnical, res.ID)
	_, hasKind := item.Payload["kind"]
	assert.False(t, hasKind)
}

func TestSubmit_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     SubmitRequest
		actor   entity.Actor
		details int
	}{
		{"unknown kind", SubmitRequest{Kind: "gardening", Payload: technicalPayload()}, customer, 1},
		{"missing kind", SubmitRequest{Payload: technicalPayload()}, customer, 1},
		{"missing actor", SubmitRequest{Kind: kind.KindTechnical, Payload: technicalPayload()}, entity.Actor{}, 1},
		{"missing fields", SubmitRequest{Kind: kind.KindTechnical, Payload: map[string]any{"title": " "}}, customer, 3},
		{"bad priority", SubmitRequest{Kind: kind.KindTechnical, Payload: map[string]any{"title": "T", "description": "D", "priority": "asap"}}, customer, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Submit(ctx, tt.req, tt.actor)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)

			var ae *apperror.Error
			require.True(t, errors.As(err, &ae))
			assert.Len(t, ae.Details, tt.details)
		})
	}

	assert.Equal(t, 0, h.repo.Count(kind.KindTechnical))
}

func TestSubmit_IDFallback(t *testing.T) {
	h := newHarness(t)
	h.ids.err = errors.New("sequence table locked")

	res, err := h.svc.Submit(context.Background(), SubmitRequest{Kind: kind.KindBilling, Payload: technicalPayload()}, customer)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ID, "billing-"), res.ID)
	assert.Greater(t, len(res.ID), len("billing-"))
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.repo.insertErr = errors.New("disk full")

	_, err := h.svc.Submit(context.Background(), SubmitRequest{Kind: kind.KindTechnical, Payload: technicalPayload()}, customer)
	h.drain()

	assert.True(t, errors.Is(err, apperror.ErrPersistence))
	assert.Equal(t, 0, h.cache.Len())
	assert.Empty(t, h.events.types())
}

func TestAssign_UsesRoutingTable(t *testing.T) {
	h := newHarness(t)
	id := h.submitTechnical(t)

	res, err := h.svc.Assign(context.Background(), kind.KindTechnical, id, nil, admin)
	require.NoError(t, err)

	assert.Equal(t, domainwf.StateAssigned, res.Status)
	assert.Equal(t, domainwf.StateSubmitted, res.Previous)
	require.NotNil(t, res.AssignedTo)
	assert.Equal(t, engineer.ID, res.AssignedTo.ID)

	item := h.stored(t, kind.KindTechnical, id)
	assert.Equal(t, engineer.ID, item.AssignedTo.ID)
	assert.Len(t, item.History, 2)
	assert.Equal(t, admin, item.History[1].Actor)
}

func TestAssign_ExplicitAssigneeAndMissingRoute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, SubmitRequest{Kind: kind.KindBilling, Payload: technicalPayload()}, customer)
	require.NoError(t, err)

	// billing has no routing table
	_, err = h.svc.Assign(ctx, kind.KindBilling, res.ID, nil, admin)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
	assert.Equal(t, "submitted", h.stored(t, kind.KindBilling, res.ID).Status)

	_, err = h.svc.Assign(ctx, kind.KindBilling, res.ID, &entity.Actor{}, admin)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	out, err := h.svc.Assign(ctx, kind.KindBilling, res.ID, &outsider, manager)
	require.NoError(t, err)
	assert.Equal(t, outsider.ID, out.AssignedTo.ID)
}

func TestAssign_RequiresPrivilege(t *testing.T) {
	h := newHarness(t)
	id := h.submitTechnical(t)

	_, err := h.svc.Assign(context.Background(), kind.KindTechnical, id, &engineer, customer)
	assert.True(t, errors.Is(err, apperror.ErrAuthorization))
}

func TestAssign_RejectsBuiltInIdentities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	for _, a := range []entity.Actor{entity.AnonymousActor, {ID: " anonymous "}, entity.SystemActor} {
		_, err := h.svc.Assign(ctx, kind.KindTechnical, id, &a, admin)
		require.Error(t, err, a.ID)
		assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)

		var ae *apperror.Error
		require.True(t, errors.As(err, &ae))
		require.Len(t, ae.Details, 1)
		assert.Equal(t, "assignee.id", ae.Details[0].Field)
	}

	item := h.stored(t, kind.KindTechnical, id)
	assert.Equal(t, "submitted", item.Status)
	assert.Nil(t, item.AssignedTo)
	assert.Len(t, item.History, 1)

	// an unauthenticated caller gains nothing on the item
	_, err := h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateInReview, TransitionOptions{Actor: entity.AnonymousActor})
	assert.True(t, errors.Is(err, apperror.ErrAuthorization), "got %v", err)
}

func TestAuditExtraRecordsAssignmentAndResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	_, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
	require.NoError(t, err)

	item := h.stored(t, kind.KindTechnical, id)
	last := item.History[len(item.History)-1]
	assert.Equal(t, engineer.ID, last.Extra["assignee"])
	assert.Equal(t, true, last.Extra["routed"])

	_, err = h.svc.Assign(ctx, kind.KindTechnical, id, &outsider, manager)
	require.NoError(t, err)
	item = h.stored(t, kind.KindTechnical, id)
	last = item.History[len(item.History)-1]
	assert.Equal(t, outsider.ID, last.Extra["assignee"])
	assert.Equal(t, false, last.Extra["routed"])

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateInReview, TransitionOptions{Actor: outsider})
	require.NoError(t, err)
	_, err = h.svc.Resolve(ctx, kind.KindTechnical, id, map[string]any{"summary": "fixed"}, outsider)
	require.NoError(t, err)

	item = h.stored(t, kind.KindTechnical, id)
	last = item.History[len(item.History)-1]
	assert.Equal(t, "resolved", last.Status)
	assert.Equal(t, map[string]any{"summary": "fixed"}, last.Extra["resolution"])
	assert.NoError(t, item.CheckAuditInvariant())
}

func TestSubmit_RejectsNonFiniteVolume(t *testing.T) {
	h := newHarness(t)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := h.svc.Submit(context.Background(), SubmitRequest{Kind: kind.KindOrderRetail, Payload: orderPayload(v, true)}, customer)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		assert.False(t, errors.Is(err, apperror.ErrPersistence))
	}
	assert.Equal(t, 0, h.repo.Count(kind.KindOrderRetail))
}

func TestResolve_UnauthorizedActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	_, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
	require.NoError(t, err)

	before := h.stored(t, kind.KindTechnical, id)

	_, err = h.svc.Resolve(ctx, kind.KindTechnical, id, map[string]any{"summary": "fixed"}, outsider)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrAuthorization))

	after := h.stored(t, kind.KindTechnical, id)
	assert.Equal(t, before.Status, after.Status)
	assert.Len(t, after.History, len(before.History))
}

func TestUpdateStatus_InvalidTransitionLeavesItemUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	key := port.CacheKey(kind.KindTechnical, id)
	cachedBefore, _ := h.cache.Get(ctx, key)

	_, err := h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateClosed, TransitionOptions{Actor: admin})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition))

	var ae *apperror.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "submitted", ae.From)
	assert.Equal(t, "closed", ae.To)

	item := h.stored(t, kind.KindTechnical, id)
	assert.Equal(t, "submitted", item.Status)
	assert.Len(t, item.History, 1)

	cachedAfter, _ := h.cache.Get(ctx, key)
	assert.Equal(t, cachedBefore, cachedAfter)
	assert.Equal(t, int32(0), h.repo.updates.Load())
}

func TestUpdateStatus_GuardsAndUnknownState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	// entering assigned without an assignee is refused
	_, err := h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateAssigned, TransitionOptions{Actor: admin})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.State("teleported"), TransitionOptions{Actor: admin})
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition))

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, id, "", TransitionOptions{Actor: admin})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, "missing", domainwf.StateAssigned, TransitionOptions{Actor: admin})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestLifecycle_DisputeEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	_, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateInReview, TransitionOptions{Actor: engineer, Notes: "looking"})
	require.NoError(t, err)

	res, err := h.svc.Resolve(ctx, kind.KindTechnical, id, map[string]any{"summary": "fixed"}, engineer)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateResolved, res.Status)
	assert.Equal(t, "fixed", res.Resolution["summary"])

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateClosed, TransitionOptions{Actor: manager})
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateInReview, TransitionOptions{Actor: admin})
	assert.True(t, errors.Is(err, apperror.ErrInvalidTransition), "closed is terminal")

	h.drain()

	item := h.stored(t, kind.KindTechnical, id)
	assert.Equal(t, "closed", item.Status)
	require.Len(t, item.History, 5)
	assert.NoError(t, item.CheckAuditInvariant())
	assert.Equal(t, "looking", item.History[2].Notes)
	for i := 1; i < len(item.History); i++ {
		assert.True(t, item.History[i].Timestamp.After(item.History[i-1].Timestamp))
	}
	assert.True(t, item.History[4].Timestamp.Equal(item.LastUpdated))

	// async delivery does not preserve order across events
	assert.ElementsMatch(t, []event.Type{
		event.TypeItemSubmitted,
		event.TypeItemAssigned,
		event.TypeItemStatusChanged,
		event.TypeItemResolved,
		event.TypeItemStatusChanged,
	}, h.events.types())
}

func TestUpdateStatus_ReopenToStartClearsAssignee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)

	_, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
	require.NoError(t, err)

	res, err := h.svc.UpdateStatus(ctx, kind.KindTechnical, id, domainwf.StateSubmitted, TransitionOptions{Actor: manager})
	require.NoError(t, err)
	assert.Nil(t, res.AssignedTo)
	assert.Nil(t, h.stored(t, kind.KindTechnical, id).AssignedTo)
}

func TestNotifications_TransportFailureDoesNotFailSubmit(t *testing.T) {
	var attempts atomic.Int32
	failing := transportFunc(func(ctx context.Context, contact, message string) error {
		attempts.Add(1)
		return errors.New("gateway unavailable")
	})

	h := newHarness(t)
	notifier := service.NewNotificationService(failing, newRegistry(t), nil)
	h.dispatcher.SubscribeAll("notify", notifier.HandleEvent)

	res, err := h.svc.Submit(context.Background(), SubmitRequest{Kind: kind.KindTechnical, Payload: technicalPayload()}, customer)
	h.drain()

	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSubmitted, res.Status)
	assert.NotContains(t, strings.ToLower(res.Message), "notif")
	assert.Equal(t, int32(1), attempts.Load())
}

type transportFunc func(ctx context.Context, contact, message string) error

func (f transportFunc) Send(ctx context.Context, contact, message string) error {
	return f(ctx, contact, message)
}

func TestCache_ReadThrough(t *testing.T) {
	h := newHarness(t)
	id := h.submitTechnical(t)

	// A second engine over the same store starts with a cold cache
	cold := cache.NewMemoryCache(cache.WithTTL(time.Hour))
	svc, err := NewEngine(newRegistry(t), h.repo, cold, access.NewPolicy(access.DefaultTable()), stubValidator{}, h.ids)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		item, err := svc.GetByID(context.Background(), kind.KindTechnical, id)
		require.NoError(t, err)
		assert.Equal(t, id, item.ID)
	}
	assert.Equal(t, int32(1), h.repo.findByID.Load())

	_, err = svc.GetByID(context.Background(), kind.KindTechnical, "nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestUpdate_PersistenceFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submitTechnical(t)
	h.repo.updateErr = errors.New("write conflict")

	_, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
	h.drain()

	assert.True(t, errors.Is(err, apperror.ErrPersistence))
	cached, ok := h.cache.Get(ctx, port.CacheKey(kind.KindTechnical, id))
	require.True(t, ok)
	assert.Equal(t, "submitted", cached.Status)
	assert.Equal(t, []event.Type{event.TypeItemSubmitted}, h.events.types())
}

func TestCancellation(t *testing.T) {
	t.Run("before persistence aborts", func(t *testing.T) {
		h := newHarness(t)
		id := h.submitTechnical(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
		assert.True(t, errors.Is(err, apperror.ErrCanceled))
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, "submitted", h.stored(t, kind.KindTechnical, id).Status)

		_, err = h.svc.Submit(ctx, SubmitRequest{Kind: kind.KindTechnical, Payload: technicalPayload()}, customer)
		assert.True(t, errors.Is(err, apperror.ErrCanceled))
		assert.Equal(t, 1, h.repo.Count(kind.KindTechnical))
	})

	t.Run("after persistence suppresses notifications only", func(t *testing.T) {
		h := newHarness(t)
		id := h.submitTechnical(t)

		ctx, cancel := context.WithCancel(context.Background())
		h.repo.onUpdate = cancel

		res, err := h.svc.Assign(ctx, kind.KindTechnical, id, nil, admin)
		h.drain()

		require.NoError(t, err)
		assert.Equal(t, domainwf.StateAssigned, res.Status)
		assert.Equal(t, "assigned", h.stored(t, kind.KindTechnical, id).Status)
		assert.Equal(t, []event.Type{event.TypeItemSubmitted}, h.events.types())
	})
}

func orderPayload(volume float64, verified bool) map[string]any {
	return map[string]any{
		"customer_name":     "Ana",
		"customer_email":    "ana@example.com",
		"delivery_address":  "1 Main St",
		"volume":            volume,
		"verified_customer": verified,
	}
}

func TestOrder_AutoApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, SubmitRequest{Kind: kind.KindOrderRetail, Payload: orderPayload(10, true)}, customer)
	require.NoError(t, err)

	out, err := h.svc.UpdateStatus(ctx, kind.KindOrderRetail, res.ID, domainwf.StateValidated, TransitionOptions{Actor: manager})
	require.NoError(t, err)
	h.drain()

	assert.Equal(t, domainwf.StateApproved, out.Status)
	assert.Equal(t, domainwf.StateSubmitted, out.Previous)
	assert.Equal(t, kind.DecisionApprove, out.Resolution[kind.FieldDecision])

	item := h.stored(t, kind.KindOrderRetail, res.ID)
	require.Len(t, item.History, 3)
	assert.Equal(t, "validated", item.History[1].Status)
	assert.Equal(t, "approved", item.History[2].Status)
	assert.Equal(t, entity.SystemActor, item.History[2].Actor)
	assert.NoError(t, item.CheckAuditInvariant())

	assert.ElementsMatch(t, []event.Type{
		event.TypeItemSubmitted,
		event.TypeItemStatusChanged,
		event.TypeItemAutoApproved,
	}, h.events.types())
}

func TestOrder_NotEligibleStaysValidated(t *testing.T) {
	tests := []struct {
		name     string
		volume   float64
		verified bool
	}{
		{"large volume", 500, true},
		{"unverified customer", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			res, err := h.svc.Submit(ctx, SubmitRequest{Kind: kind.KindOrderRetail, Payload: orderPayload(tt.volume, tt.verified)}, customer)
			require.NoError(t, err)

			out, err := h.svc.UpdateStatus(ctx, kind.KindOrderRetail, res.ID, domainwf.StateValidated, TransitionOptions{Actor: manager})
			require.NoError(t, err)
			assert.Equal(t, domainwf.StateValidated, out.Status)

			assigned, err := h.svc.Assign(ctx, kind.KindOrderRetail, res.ID, nil, manager)
			require.NoError(t, err)
			assert.Equal(t, manager.ID, assigned.AssignedTo.ID)
		})
	}
}

func TestOrder_ResolveDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Submit(ctx, SubmitRequest{Kind: kind.KindOrderRetail, Payload: orderPayload(500, false)}, customer)
	require.NoError(t, err)
	id := res.ID

	_, err = h.svc.UpdateStatus(ctx, kind.KindOrderRetail, id, domainwf.StateValidated, TransitionOptions{Actor: manager})
	require.NoError(t, err)
	_, err = h.svc.Assign(ctx, kind.KindOrderRetail, id, &engineer, manager)
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, kind.KindOrderRetail, id, domainwf.StateInReview, TransitionOptions{Actor: engineer})
	require.NoError(t, err)

	// approving through update_status needs a resolution
	_, err = h.svc.UpdateStatus(ctx, kind.KindOrderRetail, id, domainwf.StateApproved, TransitionOptions{Actor: engineer})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = h.svc.Resolve(ctx, kind.KindOrderRetail, id, map[string]any{"decision": "maybe"}, engineer)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	out, err := h.svc.Resolve(ctx, kind.KindOrderRetail, id, map[string]any{"decision": "reject", "summary": "credit check failed"}, engineer)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRejected, out.Status)
}

func TestListQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, h.submitTechnical(t))
	}
	low := technicalPayload()
	low["priority"] = "low"
	res, err := h.svc.Submit(ctx, SubmitRequest{Kind: kind.KindTechnical, Payload: low}, customer)
	require.NoError(t, err)

	_, err = h.svc.Assign(ctx, kind.KindTechnical, ids[0], nil, admin)
	require.NoError(t, err)

	t.Run("by status", func(t *testing.T) {
		items, err := h.svc.ListByStatus(ctx, kind.KindTechnical, domainwf.StateSubmitted, ListFilter{}, manager)
		require.NoError(t, err)
		assert.Len(t, items, 3)

		items, err = h.svc.ListByStatus(ctx, kind.KindTechnical, domainwf.StateSubmitted, ListFilter{Payload: map[string]string{"priority": "low"}}, manager)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, res.ID, items[0].ID)

		items, err = h.svc.ListByStatus(ctx, kind.KindTechnical, domainwf.StateSubmitted, ListFilter{Offset: 1, Limit: 1}, manager)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, ids[2], items[0].ID)

		_, err = h.svc.ListByStatus(ctx, kind.KindTechnical, domainwf.StateSubmitted, ListFilter{}, engineer)
		assert.True(t, errors.Is(err, apperror.ErrAuthorization))
	})

	t.Run("assigned to", func(t *testing.T) {
		items, err := h.svc.ListAssignedTo(ctx, kind.KindTechnical, engineer.ID, ListFilter{}, engineer)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, ids[0], items[0].ID)

		_, err = h.svc.ListAssignedTo(ctx, kind.KindTechnical, engineer.ID, ListFilter{}, outsider)
		assert.True(t, errors.Is(err, apperror.ErrAuthorization))

		items, err = h.svc.ListAssignedTo(ctx, kind.KindTechnical, engineer.ID, ListFilter{}, admin)
		require.NoError(t, err)
		assert.Len(t, items, 1)

		_, err = h.svc.ListAssignedTo(ctx, kind.KindTechnical, "", ListFilter{}, admin)
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	})
}
