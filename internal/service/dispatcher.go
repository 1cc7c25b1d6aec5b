package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/messaging"
	"gradebook_service/internal/ratelimit"
	"gradebook_service/internal/safeop"
	"gradebook_service/pkg/logging"
)

const (
	reasonNoAddress        = "no address"
	reasonSendingDisabled  = "sending disabled"
	reasonRecipientLimit   = "recipient rate limit exceeded"
	reasonGlobalLimit      = "global rate limit exceeded"
	reasonRetryInterrupted = "retry pass interrupted"
)

type DispatcherConfig struct {
	SendTimeout  time.Duration
	MaxAttempts  int
	Backoff      time.Duration
	SuppressSend bool
	// NetworkHost is probed before each send when set.
	NetworkHost  string
	ProbeTimeout time.Duration
	// ClaimTimeout is how long a claimed or in-flight event may stay
	// PENDING before a retry pass takes it over.
	ClaimTimeout time.Duration
}

type DispatchResult struct {
	Event         domain.TransitionEvent
	Notifications []domain.NotificationEvent
	// HandedOff counts recorded notifications that had not settled when the
	// dispatcher stopped waiting.
	HandedOff int
	// Detached is set when the dispatcher stopped waiting before the
	// transition was fully handled. Notifications then lists only what was
	// recorded by that point.
	Detached bool
	Err      error
}

type recipient struct {
	contact domain.Contact
	data    map[string]any
}

// plan is what a transition resolves to.
type plan struct {
	recipients []recipient
	templateID string
	student    *domain.Student
	teacher    *domain.Contact
}

// Dispatcher turns committed transitions into notifications. It owns every
// NotificationEvent and InboxItem.
type Dispatcher struct {
	directory  Directory
	store      NotificationStore
	inbox      InboxStore
	messenger  messaging.Messenger
	perRecip   ratelimit.Limiter
	global     GlobalLimiter
	probe      NetworkProbe
	exec       *safeop.Executor
	logger     *logging.Logger
	cfg        DispatcherConfig
	now        func() time.Time
	background sync.WaitGroup
}

func NewDispatcher(
	directory Directory,
	store NotificationStore,
	messenger messaging.Messenger,
	perRecipient ratelimit.Limiter,
	global GlobalLimiter,
	probe NetworkProbe,
	exec *safeop.Executor,
	logger *logging.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 10 * time.Minute
	}
	return &Dispatcher{
		directory: directory,
		store:     store,
		messenger: messenger,
		perRecip:  perRecipient,
		global:    global,
		probe:     probe,
		exec:      exec,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithInbox enables informational inbox items for administrators.
func (d *Dispatcher) WithInbox(inbox InboxStore) *Dispatcher {
	d.inbox = inbox
	return d
}

// dispatch collects the outcome of one transition while it settles.
type dispatch struct {
	mu      sync.Mutex
	slots   []domain.NotificationEvent
	settled []bool
	errs    []error
}

func (p *dispatch) add(n domain.NotificationEvent, settled bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = append(p.slots, n)
	p.settled = append(p.settled, settled)
	return len(p.slots) - 1
}

func (p *dispatch) settle(idx int, n domain.NotificationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[idx] = n
	p.settled[idx] = true
}

func (p *dispatch) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *dispatch) result(ev domain.TransitionEvent) DispatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := DispatchResult{
		Event:         ev,
		Notifications: make([]domain.NotificationEvent, len(p.slots)),
		Err:           errors.Join(p.errs...),
	}
	copy(res.Notifications, p.slots)
	for _, ok := range p.settled {
		if !ok {
			res.HandedOff++
		}
	}
	return res
}

// OnTransition resolves recipients, records one notification each and
// attempts the ones that pass the rate limits. It returns once all of that
// finished, SendTimeout elapsed or ctx is done, whichever is first; the
// rest carries on in the background.
func (d *Dispatcher) OnTransition(ctx context.Context, ev domain.TransitionEvent) DispatchResult {
	timer := time.NewTimer(d.cfg.SendTimeout)
	defer timer.Stop()

	p := &dispatch{}
	finished := make(chan struct{})
	// notifications outlive the request that caused them
	bg := context.WithoutCancel(ctx)

	d.background.Add(1)
	go func() {
		defer d.background.Done()
		defer close(finished)
		d.run(bg, ev, p)
	}()

	select {
	case <-finished:
	case <-timer.C:
	case <-ctx.Done():
	}

	detached := false
	select {
	case <-finished:
	default:
		detached = true
	}

	res := p.result(ev)
	res.Detached = detached
	if detached {
		d.logger.Info(ctx, "notification dispatch handed off to background",
			zap.Int("recorded", len(res.Notifications)),
			zap.Int("unsettled", res.HandedOff),
			zap.String("assignment_id", ev.AssignmentID.String()))
	}
	return res
}

func (d *Dispatcher) run(ctx context.Context, ev domain.TransitionEvent, p *dispatch) {
	pl, err := d.resolve(ctx, ev)
	if err != nil {
		d.logger.Error(ctx, "failed to resolve recipients",
			zap.String("kind", string(ev.Kind)),
			zap.String("assignment_id", ev.AssignmentID.String()),
			zap.Error(err))
		p.fail(err)
		return
	}

	if err := d.notifyAdmins(ctx, ev, pl); err != nil {
		d.logger.Warn(ctx, "failed to record inbox items",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
		p.fail(err)
	}

	if len(pl.recipients) == 0 {
		d.logger.Debug(ctx, "no recipients for transition", zap.String("kind", string(ev.Kind)))
		return
	}

	var sends sync.WaitGroup
	for _, rcpt := range pl.recipients {
		n := domain.NotificationEvent{
			Kind:             ev.Kind,
			AssignmentID:     ev.AssignmentID,
			RecordID:         ev.RecordID,
			RecipientRole:    rcpt.contact.Role,
			RecipientID:      rcpt.contact.UserID,
			RecipientAddress: rcpt.contact.Email,
			TemplateID:       pl.templateID,
			TemplateData:     rcpt.data,
			Status:           domain.NotificationStatusPending,
			CreatedAt:        d.now(),
		}
		if err := d.store.CreateNotification(ctx, &n); err != nil {
			d.logger.Error(ctx, "failed to record notification",
				zap.String("recipient_id", n.RecipientID.String()), zap.Error(err))
			p.fail(fmt.Errorf("record notification for %s: %w", n.RecipientID, err))
			continue
		}

		if !d.admit(ctx, &n) {
			d.save(ctx, &n)
			p.add(n, true)
			continue
		}

		idx := p.add(n, false)
		sends.Add(1)
		go func() {
			defer sends.Done()
			d.deliver(ctx, &n, d.cfg.MaxAttempts)
			p.settle(idx, n)
		}()
	}
	sends.Wait()
}

// Wait blocks until every background send has finished.
func (d *Dispatcher) Wait() {
	d.background.Wait()
}

func (d *Dispatcher) resolve(ctx context.Context, ev domain.TransitionEvent) (plan, error) {
	switch ev.Kind {
	case domain.TransitionAssignmentCreated:
		// informational only, no email recipients
		return plan{}, nil

	case domain.TransitionSubmitted:
		student, err := d.student(ctx, ev.StudentID)
		if err != nil {
			return plan{}, err
		}
		teacher, err := d.directory.GetContact(ctx, ev.TeacherID)
		if err != nil {
			return plan{}, fmt.Errorf("get teacher contact: %w", err)
		}
		data := map[string]any{
			"title":          ev.Title,
			"student_name":   student.FullName(),
			"recipient_name": teacher.Name,
			"submitted_at":   ev.OccurredAt.Format(time.RFC1123),
		}
		return plan{
			recipients: []recipient{{contact: *teacher, data: data}},
			templateID: domain.TemplateAssignmentSubmission,
			student:    student,
			teacher:    teacher,
		}, nil

	case domain.TransitionGraded:
		student, err := d.student(ctx, ev.StudentID)
		if err != nil {
			return plan{}, err
		}
		parents, err := d.directory.ListParents(ctx, student.ID)
		if err != nil {
			return plan{}, fmt.Errorf("list parents: %w", err)
		}
		out := make([]recipient, 0, len(parents))
		for _, p := range parents {
			data := map[string]any{
				"title":          ev.Title,
				"student_name":   student.FullName(),
				"recipient_name": p.Name,
				"grade":          deref(ev.Grade),
			}
			if ev.Comment != nil && *ev.Comment != "" {
				data["comment"] = *ev.Comment
			}
			out = append(out, recipient{contact: p, data: data})
		}
		return plan{recipients: out, templateID: domain.TemplateGradeNotification, student: student}, nil

	default:
		return plan{}, fmt.Errorf("unknown transition kind %q", ev.Kind)
	}
}

// notifyAdmins records one inbox item per administrator. Inbox items are
// never sent, so rate limits and the backlog do not apply to them.
func (d *Dispatcher) notifyAdmins(ctx context.Context, ev domain.TransitionEvent, pl plan) error {
	if d.inbox == nil {
		return nil
	}
	admins, err := d.directory.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		return nil
	}

	var kind, title, content string
	switch ev.Kind {
	case domain.TransitionAssignmentCreated:
		teacher := pl.teacher
		if teacher == nil {
			if teacher, err = d.directory.GetContact(ctx, ev.TeacherID); err != nil {
				return fmt.Errorf("get teacher contact: %w", err)
			}
		}
		kind, title = domain.InboxAssignmentCreated, "New Assignment Created"
		content = fmt.Sprintf("Teacher %s created a new assignment: \"%s\"", teacher.Name, ev.Title)
	case domain.TransitionSubmitted:
		kind, title = domain.InboxAssignmentMarked, "Assignment Marked"
		content = fmt.Sprintf("Assignment \"%s\" for student %s was marked completed", ev.Title, pl.student.FullName())
	case domain.TransitionGraded:
		kind, title = domain.InboxAssignmentMarked, "Assignment Marked"
		content = fmt.Sprintf("Assignment \"%s\" for student %s was graded %s", ev.Title, pl.student.FullName(), deref(ev.Grade))
	default:
		return nil
	}

	var errs []error
	for _, admin := range admins {
		item := domain.InboxItem{
			UserID:       admin.UserID,
			Type:         kind,
			AssignmentID: ev.AssignmentID,
			Title:        title,
			Content:      content,
			CreatedAt:    d.now(),
		}
		if err := d.inbox.CreateInboxItem(ctx, &item); err != nil {
			errs = append(errs, fmt.Errorf("record inbox item for %s: %w", admin.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) student(ctx context.Context, id *uuid.UUID) (*domain.Student, error) {
	if id == nil {
		return nil, fmt.Errorf("%w: transition has no student", domain.ErrInvalidArgument)
	}
	st, err := d.directory.GetStudent(ctx, *id)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

// admit settles notifications that must not reach the transport and reports
// whether n may be sent. The global bucket is consulted before the
// recipient window so a globally refused send does not use up the
// recipient's allowance.
func (d *Dispatcher) admit(ctx context.Context, n *domain.NotificationEvent) bool {
	if n.RecipientAddress == "" {
		n.MarkFailed(0, d.now(), reasonNoAddress)
		return false
	}
	if d.cfg.SuppressSend {
		n.MarkSuppressed(reasonSendingDisabled)
		return false
	}

	if d.global != nil && !d.global.Allow() {
		d.limited(ctx, n, reasonGlobalLimit)
		return false
	}

	if d.perRecip != nil {
		allowed, err := d.perRecip.Allow(ctx, n.RecipientID.String())
		if err != nil {
			// an unavailable limiter does not block delivery
			d.logger.Warn(ctx, "recipient rate limiter unavailable", zap.Error(err))
			allowed = true
		}
		if !allowed {
			d.limited(ctx, n, reasonRecipientLimit)
			return false
		}
	}
	return true
}

// limited suppresses n for a rate limit. The caller never sees this as an
// error; it is only logged.
func (d *Dispatcher) limited(ctx context.Context, n *domain.NotificationEvent, reason string) {
	err := fmt.Errorf("%w: %s", safeop.ErrRateLimited, reason)
	n.MarkSuppressed(reason)
	d.logger.Info(ctx, "notification suppressed",
		zap.String("recipient_id", n.RecipientID.String()),
		zap.String("kind", string(safeop.Classify(err, safeop.TargetNetwork))),
		zap.Error(err))
}

// deliver attempts n once through the send policy and persists the outcome.
func (d *Dispatcher) deliver(ctx context.Context, n *domain.NotificationEvent, attempts int) {
	if d.probe != nil && d.cfg.NetworkHost != "" {
		if r := d.probe.CheckNetwork(ctx, d.cfg.NetworkHost, d.cfg.ProbeTimeout); !r.Reachable {
			err := fmt.Errorf("%w: %s", safeop.ErrNetworkUnreachable, r.Reason)
			kind := safeop.Classify(err, safeop.TargetNetwork)
			n.MarkFailed(1, d.now(), fmt.Sprintf("%s: %v", kind, err))
			d.logger.Warn(ctx, "skipping send, network unreachable",
				zap.String("notification_id", n.ID.String()),
				zap.String("kind", string(kind)),
				zap.String("reason", r.Reason))
			d.save(ctx, n)
			return
		}
	}

	policy := safeop.SendPolicy("send_notification", attempts, d.cfg.Backoff)
	res := safeop.Execute(ctx, d.exec, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.messenger.Send(ctx, n.RecipientAddress, n.TemplateID, n.TemplateData)
	}, struct{}{})

	if res.Succeeded() {
		n.MarkSent(res.Attempts, d.now())
	} else {
		n.MarkFailed(res.Attempts, d.now(), res.Err.Error())
	}
	d.save(ctx, n)
}

func (d *Dispatcher) save(ctx context.Context, n *domain.NotificationEvent) {
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		d.logger.Error(ctx, "failed to update notification",
			zap.String("notification_id", n.ID.String()),
			zap.String("status", string(n.Status)),
			zap.Error(err))
	}
}

// ListNotifications returns every notification recorded for an assignment.
func (d *Dispatcher) ListNotifications(ctx context.Context, assignmentID uuid.UUID) ([]domain.NotificationEvent, error) {
	res := safeop.Execute(ctx, d.exec, safeop.ReadPolicy("list_notifications"), func(ctx context.Context) ([]domain.NotificationEvent, error) {
		return d.store.ListNotifications(ctx, assignmentID)
	}, []domain.NotificationEvent(nil))
	if !res.Succeeded() {
		return nil, res.Err
	}
	return res.Value, nil
}

// RetryFailed claims retryable notifications with attempts left out of
// maxTotal and re-attempts them. Suppressed notifications are never picked
// up. Claims the global limit keeps from being attempted are released.
func (d *Dispatcher) RetryFailed(ctx context.Context, maxTotal, batch int) (int, error) {
	now := d.now()
	claimed, err := d.store.ClaimRetryable(ctx, maxTotal, batch, now.Add(-d.cfg.ClaimTimeout), now)
	if err != nil {
		return 0, fmt.Errorf("claim retryable notifications: %w", err)
	}

	retried := 0
	for i := range claimed {
		n := claimed[i]
		reason := ""
		switch {
		case ctx.Err() != nil:
			reason = reasonRetryInterrupted
		case d.global != nil && !d.global.Allow():
			reason = reasonGlobalLimit
		}
		if reason != "" {
			d.logger.Info(ctx, "deferring retries",
				zap.Int("remaining", len(claimed)-i),
				zap.String("reason", reason))
			d.release(context.WithoutCancel(ctx), claimed[i:], reason)
			break
		}
		d.deliver(ctx, &n, min(d.cfg.MaxAttempts, maxTotal-n.Attempts))
		retried++
	}
	return retried, nil
}

// release hands claimed notifications back to the next retry pass.
func (d *Dispatcher) release(ctx context.Context, claimed []domain.NotificationEvent, reason string) {
	for i := range claimed {
		n := claimed[i]
		n.MarkFailed(0, d.now(), reason)
		d.save(ctx, &n)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
