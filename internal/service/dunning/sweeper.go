// Package dunning escalates overdue invoices: reminder levels, the late fee
// at the final tier, and the seller block. The sweep is idempotent and safe
// to run concurrently with payment confirmations; every transition it makes
// is a conditional update, and a lost race is a no-op.
package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartiermarkt/billing/internal/domain"
	"github.com/quartiermarkt/billing/internal/logging"
	"github.com/quartiermarkt/billing/internal/metrics"
	"github.com/quartiermarkt/billing/internal/notify"
)

type invoiceRepo interface {
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]domain.Invoice, error)
	ListOverdue(ctx context.Context, limit int) ([]domain.Invoice, error)
	EscalateReminder(ctx context.Context, id uuid.UUID, fromCount int, now time.Time) (bool, error)
}

type invoiceLedger interface {
	MarkOverdue(ctx context.Context, invoiceID uuid.UUID) (bool, error)
	ApplyLateFee(ctx context.Context, invoiceID uuid.UUID, fee decimal.Decimal) (bool, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, sellerID uuid.UUID) error
}

type sellerDirectory interface {
	Email(ctx context.Context, sellerID uuid.UUID) (string, error)
}

// Policy is the escalation table: EscalationDays[i] is the day past due at
// which reminder level i+1 is reached. The last entry is the final tier that
// adds the late fee and blocks the seller.
type Policy struct {
	EscalationDays []int
	LateFee        decimal.Decimal
	Batch          int
}

func (p Policy) FinalLevel() int {
	return len(p.EscalationDays)
}

// levelFor maps days past due onto a target reminder level.
func (p Policy) levelFor(daysPastDue int) int {
	level := 0
	for _, day := range p.EscalationDays {
		if daysPastDue >= day {
			level++
		}
	}
	return level
}

// Report is handed back to the scheduling trigger. Processed counts overdue
// invoices inspected, Total all invoices considered in the pass. Failures
// and NotifyFailures surface problems the sweep logged and skipped.
type Report struct {
	Total          int
	Processed      int
	Escalated      int
	Failures       int
	NotifyFailures int
}

type Sweeper struct {
	invoices invoiceRepo
	ledger   invoiceLedger
	locks    reconciler
	sellers  sellerDirectory
	notifier notify.Notifier
	policy   Policy
	now      func() time.Time
}

func NewSweeper(
	invoices invoiceRepo,
	ledger invoiceLedger,
	locks reconciler,
	sellers sellerDirectory,
	notifier notify.Notifier,
	policy Policy,
) *Sweeper {
	return &Sweeper{
		invoices: invoices,
		ledger:   ledger,
		locks:    locks,
		sellers:  sellers,
		notifier: notifier,
		policy:   policy,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one full dunning pass. A per-invoice failure is logged and
// counted, never fatal; one bad invoice must not starve the rest.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	log := logging.FromContext(ctx)
	started := s.now()

	var report Report

	due, err := s.invoices.ListDuePending(ctx, started, s.policy.Batch)
	if err != nil {
		return report, fmt.Errorf("Sweep: %w", err)
	}

	flipped := 0
	for _, inv := range due {
		changed, err := s.ledger.MarkOverdue(ctx, inv.ID)
		if err != nil {
			report.Failures++
			log.Error("overdue flip failed", "invoice_id", inv.ID, "error", err)
			continue
		}
		if changed {
			flipped++
		}
	}

	// Re-list after the flip so invoices that just became overdue get their
	// first reminder in the same pass.
	overdue, err := s.invoices.ListOverdue(ctx, s.policy.Batch)
	if err != nil {
		return report, fmt.Errorf("Sweep: %w", err)
	}

	report.Processed = len(overdue)
	report.Total = len(overdue) + len(due) - flipped

	for _, inv := range overdue {
		if err := s.escalate(ctx, inv, started, &report); err != nil {
			report.Failures++
			log.Error("escalation failed",
				"invoice_id", inv.ID,
				"seller_id", inv.SellerID,
				"error", err,
			)
		}
	}

	metrics.SweepRuns.Inc()
	metrics.SweepDuration.Observe(time.Since(started).Seconds())
	metrics.InvoicesProcessed.Add(float64(report.Processed))
	metrics.InvoicesEscalated.Add(float64(report.Escalated))
	metrics.SweepFailures.Add(float64(report.Failures))
	metrics.NotifyFailures.Add(float64(report.NotifyFailures))

	log.Info("dunning sweep completed",
		"total", report.Total,
		"processed", report.Processed,
		"escalated", report.Escalated,
		"failures", report.Failures,
		"notify_failures", report.NotifyFailures,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return report, nil
}

// escalate raises one invoice by at most one reminder level. The jump limit
// keeps the notification trail auditable even when sweeps were missed.
func (s *Sweeper) escalate(ctx context.Context, inv domain.Invoice, now time.Time, report *Report) error {
	daysPastDue := int(now.Sub(inv.DueDate).Hours() / 24)
	target := s.policy.levelFor(daysPastDue)
	if target <= inv.ReminderCount {
		return nil
	}

	advanced, err := s.invoices.EscalateReminder(ctx, inv.ID, inv.ReminderCount, now)
	if err != nil {
		return fmt.Errorf("escalate: %w", err)
	}
	if !advanced {
		// A concurrent sweep or payment got there first.
		return nil
	}

	newLevel := inv.ReminderCount + 1
	report.Escalated++

	log := logging.FromContext(ctx)
	log.Info("reminder escalated",
		"invoice_id", inv.ID,
		"seller_id", inv.SellerID,
		"level", newLevel,
		"days_past_due", daysPastDue,
	)

	if newLevel == s.policy.FinalLevel() {
		applied, err := s.ledger.ApplyLateFee(ctx, inv.ID, s.policy.LateFee)
		if err != nil {
			return fmt.Errorf("escalate: %w", err)
		}
		if applied {
			log.Info("final tier reached, late fee added", "invoice_id", inv.ID, "fee", s.policy.LateFee)
		}

		if err := s.locks.Reconcile(ctx, inv.SellerID); err != nil {
			return fmt.Errorf("escalate: %w", err)
		}
	}

	// Notification is best-effort. The reminder increment stands even when
	// dispatch fails; the billing state is authoritative.
	if err := s.dispatchReminder(ctx, inv, newLevel); err != nil {
		report.NotifyFailures++
		log.Warn("reminder dispatch failed",
			"invoice_id", inv.ID,
			"seller_id", inv.SellerID,
			"level", newLevel,
			"error", err,
		)
	}

	return nil
}

func (s *Sweeper) dispatchReminder(ctx context.Context, inv domain.Invoice, level int) error {
	email, err := s.sellers.Email(ctx, inv.SellerID)
	if err != nil {
		return fmt.Errorf("dispatchReminder: %w", err)
	}

	subject := fmt.Sprintf("Payment reminder %d for invoice %s", level, inv.ID)
	body := fmt.Sprintf(
		"Your marketplace fee invoice of %s is overdue since %s. Please settle it to keep your account active.",
		inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02"),
	)
	if level == s.policy.FinalLevel() {
		subject = fmt.Sprintf("Final reminder for invoice %s", inv.ID)
		body = fmt.Sprintf(
			"Your marketplace fee invoice of %s remains unpaid. A late fee of %s has been added and your account has been restricted until payment arrives.",
			inv.Total.StringFixed(2), s.policy.LateFee.StringFixed(2),
		)
	}

	err = s.notifier.Send(ctx, notify.Message{Recipient: email, Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("dispatchReminder: %w", err)
	}
	return nil
}

// WithNow overrides the clock. Test hook.
func (s *Sweeper) WithNow(now func() time.Time) *Sweeper {
	s.now = now
	return s
}
