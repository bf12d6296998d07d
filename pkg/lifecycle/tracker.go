// Package lifecycle drives each scheduled repayment through its date-based
// reminder and escalation milestones. The sweep is idempotent: every
// milestone fires at most once per installment, enforced by a one-way latch
// in storage, so re-running the sweep with an unchanged flag state is a
// no-op.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mikehongyuanfan/lianfund/pkg/models"
	"github.com/mikehongyuanfan/lianfund/pkg/notify"
	"github.com/mikehongyuanfan/lianfund/pkg/store"
)

// milestone is one date-triggered notification rule. dueOffsetDays is the
// offset from "today" at which the due date triggers the rule: +7 means the
// installment falls due in 7 days, -3 means it fell due 3 days ago.
type milestone struct {
	flag          models.EscalationFlag
	dueOffsetDays int
	audience      notify.Audience
	title         string
	message       func(inst *models.RepaymentInstallment) string
}

// The four milestones are fixed business thresholds, not per-application
// configuration. Triggers are point-in-time: an installment that ages past a
// threshold without being swept on the matching day never receives that
// notification retroactively.
var milestones = []milestone{
	{
		flag:          models.FlagReminderSent,
		dueOffsetDays: 7,
		audience:      notify.AudienceBorrowers,
		title:         "Upcoming Repayment Reminder",
		message: func(inst *models.RepaymentInstallment) string {
			return fmt.Sprintf(
				"This is a reminder that you have a repayment of $%s due on %s. Please ensure funds are available in your account for this repayment.",
				inst.Amount.StringFixed(2), inst.DueDate.Format("02/01/2006"))
		},
	},
	{
		flag:          models.FlagOverdue3DaySent,
		dueOffsetDays: -3,
		audience:      notify.AudienceBorrowers,
		title:         "OVERDUE Repayment Notice",
		message: func(inst *models.RepaymentInstallment) string {
			return fmt.Sprintf(
				"IMPORTANT: Your repayment of $%s was due on %s and is now 3 days overdue. Please make this payment immediately to avoid additional fees and penalties.",
				inst.Amount.StringFixed(2), inst.DueDate.Format("02/01/2006"))
		},
	},
	{
		flag:          models.FlagOverdue7DaySent,
		dueOffsetDays: -7,
		audience:      notify.AudienceBorrowers,
		title:         "URGENT: 7 Days OVERDUE Repayment",
		message: func(inst *models.RepaymentInstallment) string {
			return fmt.Sprintf(
				"URGENT: Your repayment of $%s was due on %s and is now 7 days overdue. This is your final notice before this matter is escalated. Please make this payment immediately.",
				inst.Amount.StringFixed(2), inst.DueDate.Format("02/01/2006"))
		},
	},
	{
		flag:          models.FlagOverdue10DaySent,
		dueOffsetDays: -10,
		audience:      notify.AudienceBusinessDev,
		title:         "ESCALATION: 10 Days Overdue Repayment",
		message: func(inst *models.RepaymentInstallment) string {
			return fmt.Sprintf(
				"A repayment of $%s for application %s is now 10 days overdue (due %s). This matter has been escalated to you for further action.",
				inst.Amount.StringFixed(2), inst.ApplicationID, inst.DueDate.Format("02/01/2006"))
		},
	},
}

// DispatchedNotification records one notification sent by a sweep.
type DispatchedNotification struct {
	InstallmentID uuid.UUID             `json:"installment_id"`
	ApplicationID string                `json:"application_id"`
	Flag          models.EscalationFlag `json:"flag"`
	Audience      notify.Audience       `json:"audience"`
	Title         string                `json:"title"`
}

// SweepResult summarises one escalation sweep run.
type SweepResult struct {
	Evaluated      int                      `json:"evaluated"`
	Dispatched     []DispatchedNotification `json:"dispatched"`
	DuplicateRisks int                      `json:"duplicate_risks"`
	Errors         []error                  `json:"-"`
}

// Tracker runs the escalation sweep over all open installments.
type Tracker struct {
	storage    store.Storage
	dispatcher notify.Dispatcher
	workers    int
}

// NewTracker creates a tracker. workers caps how many applications are
// processed concurrently; values below 1 mean serial processing.
func NewTracker(s store.Storage, d notify.Dispatcher, workers int) *Tracker {
	if workers < 1 {
		workers = 1
	}
	return &Tracker{storage: s, dispatcher: d, workers: workers}
}

// RunSweep evaluates every open installment against the injected reference
// date and dispatches any milestone notifications that are due and not yet
// latched. A failure on one application never blocks the others; failures
// are collected into the result. Dispatch failures leave the latch clear so
// the notification is retried on the next sweep.
func (t *Tracker) RunSweep(ctx context.Context, today time.Time) (*SweepResult, error) {
	today = dateOnly(today)

	open, err := t.storage.ListOpenInstallments()
	if err != nil {
		return nil, fmt.Errorf("list open installments: %w", err)
	}

	byApp := make(map[string][]*models.RepaymentInstallment)
	for _, inst := range open {
		byApp[inst.ApplicationID] = append(byApp[inst.ApplicationID], inst)
	}

	result := &SweepResult{Evaluated: len(open)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for appID, installments := range byApp {
		appID, installments := appID, installments
		g.Go(func() error {
			dispatched, duplicates, err := t.sweepApplication(gctx, installments, today)

			mu.Lock()
			defer mu.Unlock()
			result.Dispatched = append(result.Dispatched, dispatched...)
			result.DuplicateRisks += duplicates
			if err != nil {
				// Isolate the failure; the sweep continues elsewhere.
				log.Printf("[sweep] WARNING: application %s: %v", appID, err)
				result.Errors = append(result.Errors, fmt.Errorf("application %s: %w", appID, err))
			}
			return nil
		})
	}
	g.Wait()

	log.Printf("[sweep] Completed for %s: evaluated=%d dispatched=%d duplicate_risks=%d errors=%d",
		today.Format("2006-01-02"), result.Evaluated, len(result.Dispatched), result.DuplicateRisks, len(result.Errors))

	return result, nil
}

// sweepApplication evaluates one application's installments. It returns the
// notifications dispatched, the number of duplicate-risk events, and the
// first dispatch error encountered (later installments are still processed).
func (t *Tracker) sweepApplication(ctx context.Context, installments []*models.RepaymentInstallment, today time.Time) ([]DispatchedNotification, int, error) {
	var dispatched []DispatchedNotification
	var duplicates int
	var firstErr error

	for _, inst := range installments {
		// Paid installments are terminal; the open listing should already
		// exclude them, but a payment may land mid-sweep.
		if inst.Status == models.StatusPaid {
			continue
		}

		due := dateOnly(inst.DueDate)
		for _, m := range milestones {
			if !due.Equal(today.AddDate(0, 0, m.dueOffsetDays)) {
				continue
			}
			if inst.FlagSet(m.flag) {
				continue
			}

			// Send first, then latch. A dispatch failure leaves the flag
			// clear for retry on the next sweep; a latch failure after a
			// successful send is a known duplicate-risk event.
			err := t.dispatcher.Send(ctx, notify.Notification{
				Audience:      m.audience,
				Title:         m.title,
				Message:       m.message(inst),
				ApplicationID: inst.ApplicationID,
			})
			if err != nil {
				log.Printf("[sweep] WARNING: dispatch %s for installment %s failed: %v", m.flag, inst.ID, err)
				if firstErr == nil {
					firstErr = fmt.Errorf("%w: %s for installment %s: %v", models.ErrDispatchFailed, m.flag, inst.ID, err)
				}
				continue
			}

			won, err := t.storage.LatchEscalationFlag(inst.ID, m.flag)
			if err != nil {
				log.Printf("[sweep] WARNING: sent %s for installment %s but latch failed (duplicate risk): %v", m.flag, inst.ID, err)
				duplicates++
			} else if !won {
				// Another sweep latched between our read and our send.
				log.Printf("[sweep] WARNING: %s for installment %s already latched after send (duplicate risk)", m.flag, inst.ID)
				duplicates++
				continue
			}

			dispatched = append(dispatched, DispatchedNotification{
				InstallmentID: inst.ID,
				ApplicationID: inst.ApplicationID,
				Flag:          m.flag,
				Audience:      m.audience,
				Title:         m.title,
			})
		}
	}

	return dispatched, duplicates, firstErr
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
