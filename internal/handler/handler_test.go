package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/messaging"
	"gradebook_service/internal/probe"
	"gradebook_service/internal/ratelimit"
	"gradebook_service/internal/repository/memory"
	"gradebook_service/internal/safeop"
	"gradebook_service/internal/service"
	"gradebook_service/pkg/cache"
	"gradebook_service/pkg/logger"
	"gradebook_service/pkg/logging"
)

// ── helpers ─────────────────────────────────────────────────────────

type env struct {
	store      *memory.Store
	console    *messaging.ConsoleMessenger
	dispatcher *service.Dispatcher
	router     http.Handler

	classID uuid.UUID
	student domain.Student
	teacher domain.Contact
	other   domain.Contact
	admin   domain.Contact
	parent  domain.Contact
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:   memory.New(),
		console: messaging.NewConsoleMessenger(messaging.MustRenderer("Gradebook"), logger.NewNop()),
		classID: uuid.New(),
	}
	e.student = domain.Student{ID: uuid.New(), ClassID: e.classID, FirstName: "Ana", LastName: "Silva"}
	e.teacher = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleTeacher, Name: "Mr Hale", Email: "hale@school.test"}
	e.other = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleTeacher, Name: "Ms Vance", Email: "vance@school.test"}
	e.admin = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleAdmin, Name: "Office", Email: "office@school.test"}
	e.parent = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleParent, Name: "Rita Silva", Email: "rita@home.test"}

	e.store.AddStudent(e.student)
	for _, c := range []domain.Contact{e.teacher, e.other, e.admin, e.parent} {
		e.store.AddContact(c)
	}
	e.store.LinkParent(e.student.ID, e.parent.UserID)

	log := logging.New(zap.NewNop())
	exec := safeop.NewExecutor(log)
	prober := probe.New(e.store, time.Second)

	e.dispatcher = service.NewDispatcher(
		e.store, e.store, e.console, ratelimit.NewMemoryWindow(5, time.Hour), ratelimit.NewGlobal(0, 0),
		prober, exec, log, service.DispatcherConfig{SendTimeout: time.Second, MaxAttempts: 1, Backoff: time.Millisecond},
	).WithInbox(e.store)
	tracker := service.NewTracker(e.store, e.store, e.store, prober, e.dispatcher, exec, log)
	reporter := service.NewReporter(prober, prober, e.store, cache.NewMemoryCache(), log,
		service.ReporterConfig{ProbeTimeout: time.Second, CacheTTL: time.Minute})

	e.router = NewRouter(log, Services{
		Assignments:   tracker,
		Notifications: e.dispatcher,
		Inbox:         service.NewInbox(e.store, exec, log),
		Status:        reporter,
	})
	return e
}

func (e *env) do(t *testing.T, method, path string, as *domain.Contact, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if as != nil {
		req.Header.Set("X-User-Id", as.UserID.String())
		req.Header.Set("X-User-Role", string(as.Role))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) createAssignment(t *testing.T) domain.Assignment {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/assignments", &e.teacher, map[string]any{
		"class_id":   e.classID,
		"subject_id": uuid.New(),
		"title":      "Photosynthesis",
		"due_date":   time.Now().Add(48 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var a domain.Assignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a
}

func recordPath(a domain.Assignment, studentID uuid.UUID, action string) string {
	return fmt.Sprintf("/assignments/%s/records/%s/%s", a.ID, studentID, action)
}

// ── mapErr ──────────────────────────────────────────────────────────

func TestMapErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"BadRequest", ErrBadRequest, http.StatusBadRequest},
		{"InvalidArgument", fmt.Errorf("%w: title", domain.ErrInvalidArgument), http.StatusBadRequest},
		{"Unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"PermissionDenied", domain.ErrPermissionDenied, http.StatusForbidden},
		{"NotFound", domain.ErrNotFound, http.StatusNotFound},
		{"InvalidTransition", domain.ErrInvalidTransition, http.StatusConflict},
		{"Locked", domain.ErrAssignmentLocked, http.StatusConflict},
		{"WrappedTransition", &safeop.Error{Kind: safeop.KindInvalidTransition, Op: "submit", Err: domain.ErrInvalidTransition}, http.StatusConflict},
		{"ConnectionFault", &safeop.Error{Kind: safeop.KindConnectionFault, Op: "grade", Err: safeop.ErrDatabaseUnreachable}, http.StatusServiceUnavailable},
		{"RateLimited", safeop.ErrRateLimited, http.StatusTooManyRequests},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mapErr(tc.err))
		})
	}
}

// ── Authorizer ──────────────────────────────────────────────────────

func TestAuthorizer(t *testing.T) {
	owner := Identity{UserID: uuid.New(), Role: domain.UserRoleTeacher}
	stranger := Identity{UserID: uuid.New(), Role: domain.UserRoleTeacher}
	admin := Identity{UserID: uuid.New(), Role: domain.UserRoleAdmin}
	parent := Identity{UserID: uuid.New(), Role: domain.UserRoleParent}
	a := &domain.Assignment{ID: uuid.New(), CreatedBy: owner.UserID}

	tests := []struct {
		name    string
		id      Identity
		action  Action
		allowed bool
	}{
		{"teacher creates", owner, ActionCreate, true},
		{"admin cannot create", admin, ActionCreate, false},
		{"owner grades", owner, ActionGrade, true},
		{"other teacher cannot grade", stranger, ActionGrade, false},
		{"admin cannot grade", admin, ActionGrade, false},
		{"owner updates", owner, ActionUpdate, true},
		{"admin extends", admin, ActionExtend, true},
		{"parent cannot extend", parent, ActionExtend, false},
		{"admin submits", admin, ActionSubmit, true},
		{"other teacher cannot submit", stranger, ActionSubmit, false},
		{"parent reads", parent, ActionRead, true},
		{"owner audits", owner, ActionAudit, true},
		{"admin audits", admin, ActionAudit, true},
		{"parent cannot audit", parent, ActionAudit, false},
		{"other teacher cannot audit", stranger, ActionAudit, false},
		{"admin uses inbox", admin, ActionInbox, true},
		{"teacher has no inbox", owner, ActionInbox, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorizer{}.Authorize(tc.id, tc.action, a)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrPermissionDenied)
			}
		})
	}
}

// ── routes ──────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))
}

func TestMissingIdentity(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/assignments", nil, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAssignment(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)
	assert.Equal(t, e.teacher.UserID, a.CreatedBy)

	rec := e.do(t, http.MethodGet, "/assignments/"+a.ID.String()+"/records", &e.parent, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.CompletionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, domain.CompletionStatePending, records[0].State)
}

func TestCreateAssignment_Validation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/assignments", &e.teacher, map[string]any{"class_id": e.classID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/assignments", &e.parent, map[string]any{
		"class_id": e.classID, "subject_id": uuid.New(), "title": "Essay", "due_date": time.Now().Add(time.Hour),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitAndGrade(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	rec := e.do(t, http.MethodPost, recordPath(a, e.student.ID, "submit"), &e.teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, recordPath(a, e.student.ID, "submit"), &e.teacher, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, recordPath(a, e.student.ID, "grade"), &e.other, map[string]any{"grade": "B"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, recordPath(a, e.student.ID, "grade"), &e.teacher, map[string]any{"grade": "B", "comment": "Good work"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var graded domain.CompletionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &graded))
	assert.Equal(t, domain.CompletionStateGraded, graded.State)
	require.NotNil(t, graded.Grade)
	assert.Equal(t, "B", *graded.Grade)

	e.dispatcher.Wait()
	var addresses []string
	for _, m := range e.console.Sent() {
		addresses = append(addresses, m.To)
	}
	assert.ElementsMatch(t, []string{e.teacher.Email, e.parent.Email}, addresses)
}

func TestGradePendingRecord(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	rec := e.do(t, http.MethodPost, recordPath(a, e.student.ID, "grade"), &e.teacher, map[string]any{"grade": "A"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, recordPath(a, e.student.ID, "grade"), &e.teacher, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordRoutes_BadPaths(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	rec := e.do(t, http.MethodPost, "/assignments/"+a.ID.String()+"/records/not-a-uuid/submit", &e.teacher, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/assignments/"+uuid.NewString(), &e.teacher, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, recordPath(a, uuid.New(), "submit"), &e.teacher, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmit_DatabaseUnreachable(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)
	e.store.SetPingError(errors.New("connection refused"))

	rec := e.do(t, http.MethodPost, recordPath(a, e.student.ID, "submit"), &e.admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUpdateAndExtend(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	rec := e.do(t, http.MethodPatch, "/assignments/"+a.ID.String(), &e.teacher, map[string]any{"title": "Renamed"})
	assert.Equal(t, http.StatusConflict, rec.Code, "assignment with records is locked")

	rec = e.do(t, http.MethodPost, "/assignments/"+a.ID.String()+"/due-date", &e.admin, map[string]any{
		"due_date": a.DueDate.Add(24 * time.Hour),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(t, http.MethodPost, "/assignments/"+a.ID.String()+"/due-date", &e.teacher, map[string]any{
		"due_date": a.DueDate.Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap domain.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Database.Reachable)
	assert.True(t, snap.Network.Reachable)
	assert.Equal(t, domain.BacklogLive, snap.BacklogSource)

	e.store.SetPingError(errors.New("down"))
	rec = e.do(t, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, "degradation is reported in the body")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.Database.Reachable)
}

func TestStatus_BacklogGrowthIsVisible(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	var before domain.StatusSnapshot
	rec := e.do(t, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &before))

	for i := 0; i < 3; i++ {
		n := &domain.NotificationEvent{AssignmentID: a.ID, RecipientAddress: "rita@home.test", CreatedAt: time.Now()}
		n.MarkFailed(1, time.Now(), "smtp down")
		require.NoError(t, e.store.CreateNotification(context.Background(), n))
	}

	var after domain.StatusSnapshot
	rec = e.do(t, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))

	assert.Equal(t, before.NotificationBacklog+3, after.NotificationBacklog)
	assert.Equal(t, domain.BacklogLive, after.BacklogSource)
	assert.False(t, after.TakenAt.Before(before.TakenAt))
}

func TestListNotifications(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	rec := e.do(t, http.MethodPost, recordPath(a, e.student.ID, "submit"), &e.teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e.dispatcher.Wait()

	path := fmt.Sprintf("/assignments/%s/notifications", a.ID)
	rec = e.do(t, http.MethodGet, path, &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var events []domain.NotificationEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, domain.TransitionSubmitted, events[0].Kind)
	assert.Equal(t, e.teacher.Email, events[0].RecipientAddress)

	rec = e.do(t, http.MethodGet, path, &e.teacher, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, path, &e.parent, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, fmt.Sprintf("/assignments/%s/notifications", uuid.New()), &e.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInbox(t *testing.T) {
	e := newEnv(t)
	a := e.createAssignment(t)

	rec := e.do(t, http.MethodPost, recordPath(a, e.student.ID, "submit"), &e.teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e.dispatcher.Wait()

	rec = e.do(t, http.MethodGet, "/inbox/count", &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/inbox", &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []domain.InboxItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Assignment Marked", items[0].Title)
	assert.Equal(t, "New Assignment Created", items[1].Title)
	assert.Contains(t, items[1].Content, "Mr Hale")

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/inbox/%s/read", items[0].ID), &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/inbox?unread=true", &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, domain.InboxAssignmentCreated, items[0].Type)

	rec = e.do(t, http.MethodPost, "/inbox/read-all", &e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":1}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/inbox/count", &e.admin, nil)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestInbox_Errors(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/inbox", &e.teacher, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/inbox", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, fmt.Sprintf("/inbox/%s/read", uuid.New()), &e.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/inbox/not-a-uuid/read", &e.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/inbox?unread=maybe", &e.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentityFrom(t *testing.T) {
	_, err := identityFrom(context.Background())
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
