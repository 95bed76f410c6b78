// Package emailqueue implements C8: a durable, cron-driven email queue
// with exponential backoff retries. Modeled directly on the teacher's
// gasbank.SettlementPoller — a cron-ticked Start/Stop service that lists
// due rows and drives them through an injected sender — but backoff state
// lives in the `email_queue` table (last_attempted_at/attempts) instead of
// an in-memory map, so it survives a coordinator restart.
package emailqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/storage"
)

// Sender delivers one email; production wiring is an SMTP client, tests
// inject a fake.
type Sender interface {
	Send(ctx context.Context, e storage.EmailQueueEntry) error
}

// backoffSchedule is the §4.8 fixed retry ladder, capped at the last entry.
var backoffSchedule = []time.Duration{
	0,
	60 * time.Second,
	120 * time.Second,
	240 * time.Second,
	480 * time.Second,
	960 * time.Second,
	1920 * time.Second,
	3600 * time.Second,
}

func backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(backoffSchedule) {
		attempts = len(backoffSchedule) - 1
	}
	return backoffSchedule[attempts]
}

type Dispatcher struct {
	store        storage.EmailStore
	accounts     storage.AccountStore
	sender       Sender
	log          *logging.Logger
	batchSize    int
	staleWindow  time.Duration
	dispatchExpr string
	sweepExpr    string
	fromAddr     string

	cron *cron.Cron
}

func NewDispatcher(store storage.EmailStore, accounts storage.AccountStore, sender Sender, batchSize int, staleWindow time.Duration, dispatchExpr, sweepExpr, fromAddr string, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		accounts:     accounts,
		sender:       sender,
		log:          log,
		batchSize:    batchSize,
		staleWindow:  staleWindow,
		dispatchExpr: dispatchExpr,
		sweepExpr:    sweepExpr,
		fromAddr:     fromAddr,
	}
}

func (d *Dispatcher) Name() string { return "emailqueue-dispatcher" }

func (d *Dispatcher) Start(ctx context.Context) error {
	d.cron = cron.New()
	if _, err := d.cron.AddFunc(d.dispatchExpr, func() { d.tick(ctx) }); err != nil {
		return err
	}
	if _, err := d.cron.AddFunc(d.sweepExpr, func() { d.sweep(ctx) }); err != nil {
		return err
	}
	d.cron.Start()
	d.log.Info("email dispatcher started")
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cron == nil {
		return nil
	}
	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// tick sends every row due a retry, oldest first, bumping attempts/
// last_error/last_attempted_at on failure exactly like SettlementPoller's
// scheduleNext. The one-shot user-feedback flags are set by a separate
// store call after the failure is recorded, and a notice is only queued
// while its flag is still unset.
func (d *Dispatcher) tick(ctx context.Context) {
	now := time.Now()
	due, err := d.store.ListDue(ctx, backoff, now, d.batchSize)
	if err != nil {
		d.log.WithError(err).Warn("list due emails failed")
		return
	}

	for _, e := range due {
		if err := d.sender.Send(ctx, e); err != nil {
			d.handleFailure(ctx, e, err, now)
			continue
		}
		if err := d.store.MarkSent(ctx, e.ID, now); err != nil {
			d.log.WithError(err).WithField("email_id", e.ID).Warn("mark sent failed")
		}
	}
}

func (d *Dispatcher) handleFailure(ctx context.Context, e storage.EmailQueueEntry, sendErr error, now time.Time) {
	updated, err := d.store.MarkAttemptFailed(ctx, e.ID, sendErr.Error(), now)
	if err != nil {
		d.log.WithError(err).WithField("email_id", e.ID).Warn("mark attempt failed")
		return
	}

	switch {
	case updated.Attempts >= len(backoffSchedule) && !updated.UserNotifiedGaveUp:
		if len(updated.RelatedAccountID) > 0 {
			d.notifyAccount(ctx, updated.RelatedAccountID, gaveUpSubject, gaveUpBody(updated))
		}
		if err := d.store.MarkNotifiedGaveUp(ctx, e.ID); err != nil {
			d.log.WithError(err).WithField("email_id", e.ID).Warn("mark notified gave up failed")
		}
	case updated.Attempts >= 1 && !updated.UserNotifiedRetry:
		if len(updated.RelatedAccountID) > 0 {
			d.notifyAccount(ctx, updated.RelatedAccountID, retrySubject, retryBody(updated))
		}
		if err := d.store.MarkNotifiedRetry(ctx, e.ID); err != nil {
			d.log.WithError(err).WithField("email_id", e.ID).Warn("mark notified retry failed")
		}
	}
}

const (
	retrySubject  = "Email delivery issue - we're retrying"
	gaveUpSubject = "Email delivery failed permanently"
)

func retryBody(e storage.EmailQueueEntry) string {
	return fmt.Sprintf("We had trouble sending an email on your behalf (subject: %q, recipient: %s). "+
		"We'll keep retrying for up to 7 days; no action is needed from you.", e.Subject, e.ToAddr)
}

func gaveUpBody(e storage.EmailQueueEntry) string {
	return fmt.Sprintf("We were unable to deliver an email on your behalf after repeated delivery attempts "+
		"(subject: %q, recipient: %s, last error: %s). The recipient may need to check their address or spam settings.",
		e.Subject, e.ToAddr, e.LastError)
}

// notifyAccount queues a notice to the account's own verified address,
// never with related_account_id set, so a delivery-failure notice can
// never itself trigger another delivery-failure notice.
func (d *Dispatcher) notifyAccount(ctx context.Context, accountID []byte, subject, body string) {
	acct, err := d.accounts.GetAccount(ctx, accountID)
	if err != nil {
		d.log.WithError(err).Warn("resolve account for delivery notice failed")
		return
	}
	if !acct.EmailVerified || acct.Email == "" {
		return
	}
	if _, err := d.store.Enqueue(ctx, storage.EmailQueueEntry{
		ToAddr:    acct.Email,
		FromAddr:  d.fromAddr,
		Subject:   subject,
		Body:      body,
		IsHTML:    true,
		EmailType: storage.EmailTypeGeneral,
	}); err != nil {
		d.log.WithError(err).Warn("enqueue delivery notice failed")
	}
}

// sweep flips rows older than the retry window to failed (§4.8).
func (d *Dispatcher) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-d.staleWindow)
	n, err := d.store.ExpireStalePending(ctx, cutoff)
	if err != nil {
		d.log.WithError(err).Warn("expire stale pending emails failed")
		return
	}
	if n > 0 {
		d.log.WithField("count", n).Info("expired stale pending emails")
	}
}

// Enqueue adds an email to the queue as pending; C9's email channel and
// SLA alerts go through this rather than the store directly.
func (d *Dispatcher) Enqueue(ctx context.Context, e storage.EmailQueueEntry) (storage.EmailQueueEntry, error) {
	e.Status = storage.EmailStatusPending
	return d.store.Enqueue(ctx, e)
}

// RetryNow resets an email for immediate redelivery on the next tick,
// regardless of its current backoff schedule (manual operator retry).
func (d *Dispatcher) RetryNow(ctx context.Context, id int64) error {
	return d.store.ResetForManualRetry(ctx, id, time.Now())
}
