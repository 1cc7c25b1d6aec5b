// Package memory is an in-process store used for tests and the memory db driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

type recordKey struct {
	assignmentID uuid.UUID
	studentID    uuid.UUID
}

// Store serializes every write behind one mutex, which is its transaction
// and locking discipline.
type Store struct {
	mu sync.Mutex

	assignments   map[uuid.UUID]domain.Assignment
	records       map[recordKey]domain.CompletionRecord
	students      map[uuid.UUID]domain.Student
	contacts      map[uuid.UUID]domain.Contact
	parents       map[uuid.UUID][]uuid.UUID
	notifications map[uuid.UUID]domain.NotificationEvent
	order         []uuid.UUID
	inbox         []domain.InboxItem

	failures map[string]error
	pingErr  error
}

func New() *Store {
	return &Store{
		assignments:   make(map[uuid.UUID]domain.Assignment),
		records:       make(map[recordKey]domain.CompletionRecord),
		students:      make(map[uuid.UUID]domain.Student),
		contacts:      make(map[uuid.UUID]domain.Contact),
		parents:       make(map[uuid.UUID][]uuid.UUID),
		notifications: make(map[uuid.UUID]domain.NotificationEvent),
		failures:      make(map[string]error),
	}
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

func (s *Store) PingContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *Store) fail(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failures[op]
}

func (s *Store) AddStudent(st domain.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

func (s *Store) AddContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.UserID] = c
}

func (s *Store) LinkParent(studentID, parentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parents[studentID] = append(s.parents[studentID], parentID)
}

func (s *Store) CreateWithRecords(ctx context.Context, a *domain.Assignment, records []domain.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "CreateWithRecords"); err != nil {
		return err
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := s.assignments[a.ID]; ok {
		return fmt.Errorf("assignment %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	for i := range records {
		if _, ok := s.students[records[i].StudentID]; !ok {
			return fmt.Errorf("student %s: %w", records[i].StudentID, domain.ErrNotFound)
		}
		if !records[i].State.IsValid() {
			return fmt.Errorf("%w: record state %q", domain.ErrInvalidArgument, records[i].State)
		}
	}

	s.assignments[a.ID] = *a
	for i := range records {
		if records[i].ID == uuid.Nil {
			records[i].ID = uuid.New()
		}
		records[i].AssignmentID = a.ID
		s.records[recordKey{a.ID, records[i].StudentID}] = records[i]
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "GetAssignment"); err != nil {
		return nil, err
	}
	a, ok := s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) UpdateAssignment(ctx context.Context, id uuid.UUID, fn func(a *domain.Assignment, records []domain.CompletionRecord) error) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "UpdateAssignment"); err != nil {
		return nil, err
	}
	a, ok := s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment %s: %w", id, domain.ErrNotFound)
	}
	if err := fn(&a, s.recordsOf(id)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.assignments[id] = a
	return &a, nil
}

func (s *Store) recordsOf(assignmentID uuid.UUID) []domain.CompletionRecord {
	var out []domain.CompletionRecord
	for k, r := range s.records {
		if k.assignmentID == assignmentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StudentID.String() < out[j].StudentID.String()
	})
	return out
}

func (s *Store) ListRecords(ctx context.Context, assignmentID uuid.UUID) ([]domain.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ListRecords"); err != nil {
		return nil, err
	}
	if _, ok := s.assignments[assignmentID]; !ok {
		return nil, fmt.Errorf("assignment %s: %w", assignmentID, domain.ErrNotFound)
	}
	return s.recordsOf(assignmentID), nil
}

func (s *Store) GetRecord(ctx context.Context, assignmentID, studentID uuid.UUID) (*domain.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "GetRecord"); err != nil {
		return nil, err
	}
	r, ok := s.records[recordKey{assignmentID, studentID}]
	if !ok {
		return nil, fmt.Errorf("record %s/%s: %w", assignmentID, studentID, domain.ErrNotFound)
	}
	return &r, nil
}

func (s *Store) UpdateRecord(ctx context.Context, assignmentID, studentID uuid.UUID, fn func(r *domain.CompletionRecord) error) (*domain.CompletionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "UpdateRecord"); err != nil {
		return nil, err
	}
	key := recordKey{assignmentID, studentID}
	r, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("record %s/%s: %w", assignmentID, studentID, domain.ErrNotFound)
	}
	if err := fn(&r); err != nil {
		return nil, err
	}
	// a caller that gave up before commit leaves no trace
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.failures["CommitRecord"]; err != nil {
		return nil, err
	}
	s.records[key] = r
	return &r, nil
}

func (s *Store) ListStudentsByClass(ctx context.Context, classID uuid.UUID) ([]domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ListStudentsByClass"); err != nil {
		return nil, err
	}
	var out []domain.Student
	for _, st := range s.students {
		if st.ClassID == classID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "GetStudent"); err != nil {
		return nil, err
	}
	st, ok := s.students[id]
	if !ok {
		return nil, fmt.Errorf("student %s: %w", id, domain.ErrNotFound)
	}
	return &st, nil
}

func (s *Store) GetContact(ctx context.Context, userID uuid.UUID) (*domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "GetContact"); err != nil {
		return nil, err
	}
	c, ok := s.contacts[userID]
	if !ok {
		return nil, fmt.Errorf("contact %s: %w", userID, domain.ErrNotFound)
	}
	return &c, nil
}

// ListParents returns parents in the order they were linked.
func (s *Store) ListParents(ctx context.Context, studentID uuid.UUID) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ListParents"); err != nil {
		return nil, err
	}
	var out []domain.Contact
	for _, id := range s.parents[studentID] {
		if c, ok := s.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ListAdmins(ctx context.Context) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ListAdmins"); err != nil {
		return nil, err
	}
	var out []domain.Contact
	for _, c := range s.contacts {
		if c.Role == domain.UserRoleAdmin {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "CreateNotification"); err != nil {
		return err
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	s.notifications[n.ID] = *n
	s.order = append(s.order, n.ID)
	return nil
}

func (s *Store) UpdateNotification(ctx context.Context, n *domain.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "UpdateNotification"); err != nil {
		return err
	}
	if _, ok := s.notifications[n.ID]; !ok {
		return fmt.Errorf("notification %s: %w", n.ID, domain.ErrNotFound)
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, assignmentID uuid.UUID) ([]domain.NotificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ListNotifications"); err != nil {
		return nil, err
	}
	var out []domain.NotificationEvent
	for _, id := range s.order {
		if n := s.notifications[id]; n.AssignmentID == assignmentID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) ClaimRetryable(ctx context.Context, maxAttempts, limit int, staleBefore, now time.Time) ([]domain.NotificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ClaimRetryable"); err != nil {
		return nil, err
	}
	var out []domain.NotificationEvent
	for _, id := range s.order {
		n := s.notifications[id]
		if !retryable(n, maxAttempts, staleBefore) {
			continue
		}
		n.Status = domain.NotificationStatusPending
		n.LastAttemptAt = &now
		s.notifications[id] = n
		out = append(out, n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func retryable(n domain.NotificationEvent, maxAttempts int, staleBefore time.Time) bool {
	if n.RecipientAddress == "" || n.Attempts >= maxAttempts {
		return false
	}
	switch n.Status {
	case domain.NotificationStatusFailed:
		return true
	case domain.NotificationStatusPending:
		touched := n.CreatedAt
		if n.LastAttemptAt != nil {
			touched = *n.LastAttemptAt
		}
		return touched.Before(staleBefore)
	default:
		return false
	}
}

func (s *Store) CountBacklog(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "CountBacklog"); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range s.notifications {
		if n.Status.InBacklog() {
			count++
		}
	}
	return count, nil
}

// Notifications returns every stored event in insertion order.
func (s *Store) Notifications() []domain.NotificationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NotificationEvent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.notifications[id])
	}
	return out
}

func (s *Store) CreateInboxItem(ctx context.Context, item *domain.InboxItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "CreateInboxItem"); err != nil {
		return err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.inbox = append(s.inbox, *item)
	return nil
}

// ListInbox returns the user's items newest first.
func (s *Store) ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.InboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "ListInbox"); err != nil {
		return nil, err
	}
	var out []domain.InboxItem
	for i := len(s.inbox) - 1; i >= 0; i-- {
		item := s.inbox[i]
		if item.UserID != userID || (unreadOnly && item.Read) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "CountUnread"); err != nil {
		return 0, err
	}
	count := 0
	for _, item := range s.inbox {
		if item.UserID == userID && !item.Read {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkInboxRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*domain.InboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "MarkInboxRead"); err != nil {
		return nil, err
	}
	for i := range s.inbox {
		if s.inbox[i].ID == id && s.inbox[i].UserID == userID {
			s.inbox[i].MarkRead(at)
			item := s.inbox[i]
			return &item, nil
		}
	}
	return nil, fmt.Errorf("inbox item %s: %w", id, domain.ErrNotFound)
}

func (s *Store) MarkAllInboxRead(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(ctx, "MarkAllInboxRead"); err != nil {
		return 0, err
	}
	marked := 0
	for i := range s.inbox {
		if s.inbox[i].UserID == userID && !s.inbox[i].Read {
			s.inbox[i].MarkRead(at)
			marked++
		}
	}
	return marked, nil
}
