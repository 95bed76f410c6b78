package notify

import (
	"context"

	"github.com/aethermarket/coordinator/internal/storage"
)

// emailEnqueuer is the slice of emailqueue.Dispatcher this channel needs;
// declared locally so notify doesn't import emailqueue's Sender/cron
// plumbing just to hand off a message.
type emailEnqueuer interface {
	Enqueue(ctx context.Context, e storage.EmailQueueEntry) (storage.EmailQueueEntry, error)
}

// EmailChannel routes a notification through the durable C8 queue instead
// of sending synchronously.
type EmailChannel struct {
	queue    emailEnqueuer
	fromAddr string
}

func NewEmailChannel(queue emailEnqueuer, fromAddr string) *EmailChannel {
	return &EmailChannel{queue: queue, fromAddr: fromAddr}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, recipient, message string) error {
	_, err := c.queue.Enqueue(ctx, storage.EmailQueueEntry{
		ToAddr:    recipient,
		FromAddr:  c.fromAddr,
		Subject:   "Notification",
		Body:      message,
		EmailType: "notify",
	})
	return err
}
