package alerting

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// mailSender delivers one message, giving up when ctx ends.
type mailSender interface {
	Send(ctx context.Context, msg *gomail.Message) error
}

// EmailOptions configure the SMTP relay.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier sends alerts through an SMTP relay.
type EmailNotifier struct {
	from   string
	to     []string
	sender mailSender
	logger zerolog.Logger
}

// NewEmailNotifier constructs an SMTP notifier.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	from := opts.From
	if from == "" {
		from = opts.Username
	}
	return newEmailNotifier(from, opts.To, newSMTPSender(opts.Host, opts.Port, opts.Username, opts.Password), logger)
}

func newEmailNotifier(from string, to []string, sender mailSender, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		from:   from,
		to:     to,
		sender: sender,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

func (n *EmailNotifier) Name() string { return "email" }

// Notify sends one message. The SMTP exchange is abandoned when ctx ends.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if len(n.to) == 0 {
		return fmt.Errorf("email: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.sender.Send(ctx, n.buildMessage(note)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().Str("hour", note.HourLabel).
		Str("price", note.RawDisplay).
		Str("to", strings.Join(n.to, ",")).
		Msg("alert sent (email)")
	return nil
}

func (n *EmailNotifier) buildMessage(note Notification) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", n.to...)
	msg.SetHeader("Subject", Subject(note))
	msg.SetBody("text/plain", Body(note))
	msg.AddAlternative("text/html", renderHTML(note))
	return msg
}

func renderHTML(note Notification) string {
	lines := strings.Split(strings.TrimRight(Body(note), "\n"), "\n")
	builder := strings.Builder{}
	builder.WriteString("<p>")
	for i, line := range lines {
		if i > 0 {
			builder.WriteString("<br>")
		}
		if note.SourceURL != "" && strings.HasPrefix(line, "Source: ") {
			url := html.EscapeString(note.SourceURL)
			builder.WriteString(fmt.Sprintf(`Source: <a href="%s">%s</a>`, url, url))
			continue
		}
		builder.WriteString(html.EscapeString(line))
	}
	builder.WriteString("</p>")
	return builder.String()
}

var _ Notifier = (*EmailNotifier)(nil)
