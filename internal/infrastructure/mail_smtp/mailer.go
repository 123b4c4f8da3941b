package mail_smtp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mail "github.com/wneessen/go-mail"

	"github.com/davarch/workflow-monitor/internal/domain"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// New builds the mail transport. When no SMTP host is configured a noop
// transport is returned: it reports nothing sent, so delivery state is
// never stamped and notifications stay pending until mail is set up.
func New(opts Options) domain.Mailer {
	if opts.Host == "" {
		return noopMailer{}
	}
	return &smtpMailer{opts: opts}
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, domain.Notification, []string) (string, error) {
	return "", nil
}

type smtpMailer struct {
	opts Options
}

func (m *smtpMailer) Send(ctx context.Context, n domain.Notification, recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.opts.From); err != nil {
		return "", fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(recipients...); err != nil {
		return "", fmt.Errorf("mail to: %w", err)
	}
	msg.Subject(subjectFor(n))
	msg.SetBodyString(mail.TypeTextPlain, bodyFor(n))

	clientOpts := []mail.Option{mail.WithPort(m.opts.Port)}
	if m.opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.opts.Username),
			mail.WithPassword(m.opts.Password),
		)
	}

	client, err := mail.NewClient(m.opts.Host, clientOpts...)
	if err != nil {
		return "", fmt.Errorf("mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}
	return uuid.NewString(), nil
}

func subjectFor(n domain.Notification) string {
	switch n.Event {
	case domain.EventBuildFailed:
		return "Workflow build failed"
	case domain.EventBuildRecovered:
		return "Workflow build recovered"
	default:
		return "Workflow monitor notification"
	}
}

func bodyFor(n domain.Notification) string {
	return fmt.Sprintf("%s\n\n%s\n", n.Name, n.Payload)
}
