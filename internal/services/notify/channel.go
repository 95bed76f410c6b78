// Package notify implements C9: per-channel delivery with daily quotas
// and SLA breach detection. Channel implementations follow the teacher's
// internal/app/services/oracle HTTP-resolver shape (constructor takes a
// bot token or base URL and builds its own timeout-bounded *http.Client;
// no logger is injected); quotas degrade from Redis to
// Postgres the way internal/app/application.go treats optional
// dependency URLs as absent rather than fatal.
package notify

import (
	"context"
	"fmt"

	"github.com/aethermarket/coordinator/internal/apierr"
)

// Channel is one delivery mechanism a notification can be routed through.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient, message string) error
}

type Service struct {
	channels map[string]Channel
	quota    QuotaLimiter
	limits   map[string]int
}

func NewService(quota QuotaLimiter, limits map[string]int, channels ...Channel) *Service {
	m := make(map[string]Channel, len(channels))
	for _, c := range channels {
		m[c.Name()] = c
	}
	return &Service{channels: m, quota: quota, limits: limits}
}

// Send routes a message through the named channel after checking the
// account's daily quota for that channel (§4.9).
func (s *Service) Send(ctx context.Context, channel string, accountID []byte, recipient, message string) error {
	c, ok := s.channels[channel]
	if !ok {
		return apierr.BadRequest("unknown_channel", fmt.Sprintf("no notification channel registered for %q", channel))
	}

	limit, hasLimit := s.limits[channel]
	if hasLimit {
		count, err := s.quota.Increment(ctx, accountID, channel)
		if err != nil {
			return apierr.Wrap(err, "check notification quota")
		}
		if count > limit {
			return apierr.QuotaExceeded("daily_quota_exceeded", fmt.Sprintf("daily quota for channel %q exceeded", channel))
		}
	}

	return c.Send(ctx, recipient, message)
}
