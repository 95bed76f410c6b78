package notify

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/storage"
)

// slaAccountResolver is the slice of storage.AccountStore this checker
// needs, declared locally the way email_channel.go narrows emailqueue's
// Dispatcher down to Enqueue.
type slaAccountResolver interface {
	GetAccount(ctx context.Context, id []byte) (storage.Account, error)
}

// SLAChecker evaluates pending notification events against their window
// and alerts once per breach (§4.9, idempotent MarkSLAAlerted flip). The
// alert is a structured General email to the provider, not a bare string
// to an operator channel, so the provider sees wait-hours/contract-id/link.
type SLAChecker struct {
	store    storage.NotifyStore
	accounts slaAccountResolver
	queue    emailEnqueuer
	fromAddr string
	log      *logging.Logger
}

func NewSLAChecker(store storage.NotifyStore, accounts slaAccountResolver, queue emailEnqueuer, fromAddr string, log *logging.Logger) *SLAChecker {
	return &SLAChecker{store: store, accounts: accounts, queue: queue, fromAddr: fromAddr, log: log}
}

func (c *SLAChecker) Sweep(ctx context.Context, _ string) {
	now := time.Now()
	breaches, err := c.store.PendingBeyondSLA(ctx, now)
	if err != nil {
		c.log.WithError(err).Warn("list SLA breaches failed")
		return
	}

	for _, ev := range breaches {
		alerted, err := c.store.MarkSLAAlerted(ctx, ev.MessageID)
		if err != nil {
			c.log.WithError(err).WithField("message_id", ev.MessageID).Warn("mark sla alerted failed")
			continue
		}
		if !alerted {
			continue
		}
		c.notifyProvider(ctx, ev, now)
	}
}

func (c *SLAChecker) notifyProvider(ctx context.Context, ev storage.NotificationEvent, now time.Time) {
	if len(ev.ProviderPubkey) == 0 {
		c.log.WithField("message_id", ev.MessageID).Warn("sla breach has no provider_pubkey, cannot alert")
		return
	}
	acct, err := c.accounts.GetAccount(ctx, ev.ProviderPubkey)
	if err != nil {
		c.log.WithError(err).WithField("message_id", ev.MessageID).Warn("resolve provider account for sla alert failed")
		return
	}
	if !acct.EmailVerified || acct.Email == "" {
		return
	}

	waitHours := now.Sub(ev.CreatedAt).Hours()
	_, err = c.queue.Enqueue(ctx, storage.EmailQueueEntry{
		ToAddr:    acct.Email,
		FromAddr:  c.fromAddr,
		Subject:   "Unread message needs your attention",
		Body:      slaBreachBody(ev, waitHours),
		IsHTML:    true,
		EmailType: storage.EmailTypeGeneral,
	})
	if err != nil {
		c.log.WithError(err).WithField("message_id", ev.MessageID).Warn("enqueue sla alert failed")
	}
}

func slaBreachBody(ev storage.NotificationEvent, waitHours float64) string {
	contractLink := "an open rental"
	if len(ev.ContractID) > 0 {
		contractID := hex.EncodeToString(ev.ContractID)
		contractLink = fmt.Sprintf("contract %s (https://aethermarket.example/contracts/%s)", contractID, contractID)
	}
	return fmt.Sprintf(
		"A customer message on %s has gone unread for %.1f hours, past your response SLA. "+
			"Please reply as soon as you can: https://aethermarket.example/messages/%s",
		contractLink, waitHours, ev.MessageID,
	)
}
