package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/safeop"
	"gradebook_service/pkg/logging"
)

// Tracker owns the assignment and completion record lifecycle. Callers are
// expected to be authorized already.
type Tracker struct {
	assignments AssignmentStore
	records     CompletionStore
	directory   Directory
	probe       DatabaseProbe
	sink        EventSink
	exec        *safeop.Executor
	logger      *logging.Logger
	now         func() time.Time
}

func NewTracker(
	assignments AssignmentStore,
	records CompletionStore,
	directory Directory,
	probe DatabaseProbe,
	sink EventSink,
	exec *safeop.Executor,
	logger *logging.Logger,
) *Tracker {
	return &Tracker{
		assignments: assignments,
		records:     records,
		directory:   directory,
		probe:       probe,
		sink:        sink,
		exec:        exec,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// commit runs op as a single non-retried mutation, after checking the
// database is reachable at all.
func commit[T any](ctx context.Context, t *Tracker, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if t.probe != nil {
		if r := t.probe.CheckDatabase(ctx); !r.Reachable {
			t.logger.Warn(ctx, "skipping commit, database unreachable",
				zap.String("operation", name), zap.String("reason", r.Reason))
			return zero, &safeop.Error{
				Kind: safeop.KindConnectionFault,
				Op:   name,
				Err:  fmt.Errorf("%w: %s", safeop.ErrDatabaseUnreachable, r.Reason),
			}
		}
	}

	res := safeop.Execute(ctx, t.exec, safeop.MutationPolicy(name), op, zero)
	if !res.Succeeded() {
		return zero, res.Err
	}
	return res.Value, nil
}

func read[T any](ctx context.Context, t *Tracker, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	res := safeop.Execute(ctx, t.exec, safeop.ReadPolicy(name), op, zero)
	if !res.Succeeded() {
		return zero, res.Err
	}
	return res.Value, nil
}

func (t *Tracker) emit(ctx context.Context, ev domain.TransitionEvent) {
	if t.sink == nil {
		return
	}
	res := t.sink.OnTransition(ctx, ev)
	if res.Err != nil {
		t.logger.Warn(ctx, "notification dispatch incomplete",
			zap.String("kind", string(ev.Kind)),
			zap.String("assignment_id", ev.AssignmentID.String()),
			zap.Error(res.Err))
	}
}

func (t *Tracker) CreateAssignment(ctx context.Context, req domain.NewAssignment) (*domain.Assignment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	roster, err := read(ctx, t, "list_roster", func(ctx context.Context) ([]domain.Student, error) {
		return t.directory.ListStudentsByClass(ctx, req.ClassID)
	})
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := t.now()
	assignment := &domain.Assignment{
		ID:          id,
		SchoolID:    req.SchoolID,
		ClassID:     req.ClassID,
		SubjectID:   req.SubjectID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		EditedAt:    now,
	}

	records := make([]domain.CompletionRecord, 0, len(roster))
	for _, st := range roster {
		records = append(records, domain.NewCompletionRecord(assignment.ID, st.ID, now))
	}

	_, err = commit(ctx, t, "create_assignment", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.assignments.CreateWithRecords(ctx, assignment, records)
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info(ctx, "assignment created",
		zap.String("assignment_id", assignment.ID.String()),
		zap.Int("records", len(records)))

	t.emit(ctx, domain.TransitionEvent{
		Kind:         domain.TransitionAssignmentCreated,
		AssignmentID: assignment.ID,
		TeacherID:    assignment.CreatedBy,
		Title:        assignment.Title,
		OccurredAt:   now,
	})
	return assignment, nil
}

func (t *Tracker) GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error) {
	return read(ctx, t, "get_assignment", func(ctx context.Context) (*domain.Assignment, error) {
		return t.assignments.GetAssignment(ctx, id)
	})
}

func (t *Tracker) ListRecords(ctx context.Context, assignmentID uuid.UUID) ([]domain.CompletionRecord, error) {
	return read(ctx, t, "list_records", func(ctx context.Context) ([]domain.CompletionRecord, error) {
		return t.records.ListRecords(ctx, assignmentID)
	})
}

func (t *Tracker) GetRecord(ctx context.Context, assignmentID, studentID uuid.UUID) (*domain.CompletionRecord, error) {
	return read(ctx, t, "get_record", func(ctx context.Context) (*domain.CompletionRecord, error) {
		return t.records.GetRecord(ctx, assignmentID, studentID)
	})
}

// UpdateAssignmentDetails edits title and description while no student has a
// completion record yet.
func (t *Tracker) UpdateAssignmentDetails(ctx context.Context, id uuid.UUID, title string, description *string) (*domain.Assignment, error) {
	return commit(ctx, t, "update_assignment", func(ctx context.Context) (*domain.Assignment, error) {
		return t.assignments.UpdateAssignment(ctx, id, func(a *domain.Assignment, records []domain.CompletionRecord) error {
			return a.EditDetails(title, description, len(records), t.now())
		})
	})
}

// ExtendDueDate never touches record state and notifies nobody.
func (t *Tracker) ExtendDueDate(ctx context.Context, id uuid.UUID, newDue time.Time) (*domain.Assignment, error) {
	a, err := commit(ctx, t, "extend_due_date", func(ctx context.Context) (*domain.Assignment, error) {
		return t.assignments.UpdateAssignment(ctx, id, func(a *domain.Assignment, records []domain.CompletionRecord) error {
			return a.ExtendDueDate(newDue, records, t.now())
		})
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info(ctx, "due date extended",
		zap.String("assignment_id", id.String()),
		zap.Time("due_date", a.DueDate))
	return a, nil
}

func (t *Tracker) Submit(ctx context.Context, assignmentID, studentID uuid.UUID) (*domain.CompletionRecord, error) {
	return t.transition(ctx, "submit", domain.TransitionSubmitted, assignmentID, studentID,
		func(r *domain.CompletionRecord, now time.Time) error {
			return r.Submit(now)
		})
}

// Grade grades a submitted record or overwrites the grade of a graded one.
// Every successful call notifies again.
func (t *Tracker) Grade(ctx context.Context, assignmentID, studentID uuid.UUID, value string, comment *string) (*domain.CompletionRecord, error) {
	return t.transition(ctx, "grade", domain.TransitionGraded, assignmentID, studentID,
		func(r *domain.CompletionRecord, now time.Time) error {
			return r.ApplyGrade(value, comment, now)
		})
}

func (t *Tracker) transition(
	ctx context.Context,
	name string,
	kind domain.TransitionKind,
	assignmentID, studentID uuid.UUID,
	apply func(r *domain.CompletionRecord, now time.Time) error,
) (*domain.CompletionRecord, error) {
	assignment, err := t.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	rec, err := commit(ctx, t, name, func(ctx context.Context) (*domain.CompletionRecord, error) {
		return t.records.UpdateRecord(ctx, assignmentID, studentID, func(r *domain.CompletionRecord) error {
			return apply(r, t.now())
		})
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info(ctx, "completion record updated",
		zap.String("assignment_id", assignmentID.String()),
		zap.String("student_id", studentID.String()),
		zap.String("state", string(rec.State)))

	t.emit(ctx, domain.RecordEvent(kind, assignment, rec, rec.EditedAt))
	return rec, nil
}
