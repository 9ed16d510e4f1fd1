package notify

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"

	"workshop-service/internal/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends a single message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPMailer struct {
	dialer  *gomail.Dialer
	from    string
	timeout time.Duration
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		timeout: cfg.Timeout,
	}
}

// Send delivers the message over SMTP, bounded by the configured timeout
// or the caller's context, whichever ends first.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(gm)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

const (
	maxSendRetries   = 2
	initialSendDelay = 500 * time.Millisecond
)

// Dispatch sends with a small fixed retry budget and exponential backoff.
// It reports how many attempts were made; after the budget is exhausted the
// last error is returned and the message is abandoned.
func Dispatch(ctx context.Context, mailer Mailer, msg Message) (int, error) {
	attempts := 0
	backoff := retry.WithMaxRetries(maxSendRetries, retry.NewExponential(initialSendDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := mailer.Send(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	return attempts, err
}
