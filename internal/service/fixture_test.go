package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/probe"
	"gradebook_service/internal/ratelimit"
	"gradebook_service/internal/repository/memory"
	"gradebook_service/internal/safeop"
	"gradebook_service/internal/service"
	"gradebook_service/internal/service/mocks"
	"gradebook_service/pkg/logging"
)

type fixture struct {
	store      *memory.Store
	messenger  *mocks.MockMessenger
	limiter    *ratelimit.MemoryWindow
	dispatcher *service.Dispatcher
	tracker    *service.Tracker

	assignment *domain.Assignment
	student    domain.Student
	teacher    domain.Contact
	p1, p2     domain.Contact
}

type fixtureOption func(*service.DispatcherConfig)

func withConfig(fn func(*service.DispatcherConfig)) fixtureOption { return fn }

func newFixture(t *testing.T, ctrl *gomock.Controller, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := service.DispatcherConfig{
		SendTimeout: time.Second,
		MaxAttempts: 1,
		Backoff:     time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newFixtureWithProbe(t, ctrl, nil, cfg)
}

func newFixtureWithProbe(t *testing.T, ctrl *gomock.Controller, network service.NetworkProbe, cfg service.DispatcherConfig) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.New(),
		messenger: mocks.NewMockMessenger(ctrl),
		limiter:   ratelimit.NewMemoryWindow(5, time.Hour),
	}

	classID := uuid.New()
	f.student = domain.Student{ID: uuid.New(), ClassID: classID, FirstName: "Sam", LastName: "Okafor"}
	f.teacher = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleTeacher, Name: "Ms Reed", Email: "reed@school.test"}
	f.p1 = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleParent, Name: "Parent One", Email: "p1@home.test"}
	f.p2 = domain.Contact{UserID: uuid.New(), Role: domain.UserRoleParent, Name: "Parent Two", Email: "p2@home.test"}

	f.store.AddStudent(f.student)
	f.store.AddContact(f.teacher)
	f.store.AddContact(f.p1)
	f.store.AddContact(f.p2)
	f.store.LinkParent(f.student.ID, f.p1.UserID)
	f.store.LinkParent(f.student.ID, f.p2.UserID)

	logger := logging.New(zap.NewNop())
	exec := safeop.NewExecutor(logger)

	f.dispatcher = service.NewDispatcher(
		f.store, f.store, f.messenger, f.limiter, ratelimit.NewGlobal(0, 0), network, exec, logger, cfg,
	)
	f.tracker = service.NewTracker(
		f.store, f.store, f.store, probe.New(f.store, time.Second), f.dispatcher, exec, logger,
	)

	a, err := f.tracker.CreateAssignment(context.Background(), domain.NewAssignment{
		ClassID:   classID,
		SubjectID: uuid.New(),
		Title:     "Fractions",
		DueDate:   time.Now().Add(72 * time.Hour),
		CreatedBy: f.teacher.UserID,
	})
	require.NoError(t, err)
	f.assignment = a
	return f
}

func (f *fixture) notifications(kind domain.TransitionKind) []domain.NotificationEvent {
	var out []domain.NotificationEvent
	for _, n := range f.store.Notifications() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// submit moves the fixture student's record to Submitted, accepting the
// teacher notification.
func (f *fixture) submit(t *testing.T) {
	t.Helper()
	f.messenger.EXPECT().
		Send(gomock.Any(), f.teacher.Email, domain.TemplateAssignmentSubmission, gomock.Any()).
		Return(nil)
	_, err := f.tracker.Submit(context.Background(), f.assignment.ID, f.student.ID)
	require.NoError(t, err)
}
