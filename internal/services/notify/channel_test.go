package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuota struct {
	counts map[string]int
}

func newFakeQuota() *fakeQuota { return &fakeQuota{counts: map[string]int{}} }

func (q *fakeQuota) Increment(_ context.Context, accountID []byte, channel string) (int, error) {
	key := channel + ":" + string(accountID)
	q.counts[key]++
	return q.counts[key], nil
}

type recordingChannel struct {
	name string
	sent []string
}

func (c *recordingChannel) Name() string { return c.name }
func (c *recordingChannel) Send(_ context.Context, recipient, message string) error {
	c.sent = append(c.sent, recipient+":"+message)
	return nil
}

func TestSendEnforcesDailyQuota(t *testing.T) {
	quota := newFakeQuota()
	ch := &recordingChannel{name: "sms"}
	svc := NewService(quota, map[string]int{"sms": 2}, ch)

	account := []byte("acct-1")
	for i := 0; i < 2; i++ {
		require.NoError(t, svc.Send(context.Background(), "sms", account, "+1555", "hi"))
	}

	err := svc.Send(context.Background(), "sms", account, "+1555", "hi")
	require.Error(t, err)
	assert.Len(t, ch.sent, 2)
}

func TestSendRejectsUnknownChannel(t *testing.T) {
	svc := NewService(newFakeQuota(), nil)
	err := svc.Send(context.Background(), "carrier-pigeon", []byte("a"), "dest", "msg")
	assert.Error(t, err)
}
