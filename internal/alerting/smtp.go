package alerting

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"gopkg.in/gomail.v2"
)

const smtpDialTimeout = 10 * time.Second

// smtpSender delivers gomail messages over one SMTP session per send. Every
// network step is bounded by the caller's context: the connection carries the
// context deadline and is closed when the context ends, so a stalled relay
// never outlives the send.
type smtpSender struct {
	host     string
	port     int
	username string
	password string
	// implicitTLS dials straight into TLS (SMTPS); otherwise STARTTLS is used
	// when the relay offers it.
	implicitTLS bool
	tlsConfig   *tls.Config
	dialer      net.Dialer
}

func newSMTPSender(host string, port int, username, password string) *smtpSender {
	return &smtpSender{
		host:        host,
		port:        port,
		username:    username,
		password:    password,
		implicitTLS: port == 465,
		tlsConfig:   &tls.Config{ServerName: host},
		dialer:      net.Dialer{Timeout: smtpDialTimeout},
	}
}

// Send runs the whole SMTP exchange for msg.
func (s *smtpSender) Send(ctx context.Context, msg *gomail.Message) error {
	conn, err := s.dial(ctx)
	if err != nil {
		return withContext(ctx, fmt.Errorf("dial %s: %w", s.addr(), err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return withContext(ctx, fmt.Errorf("greeting: %w", err))
	}
	defer client.Close()

	if !s.implicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(s.tlsConfig); err != nil {
				return withContext(ctx, fmt.Errorf("starttls: %w", err))
			}
		}
	}
	if s.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
				return withContext(ctx, fmt.Errorf("auth: %w", err))
			}
		}
	}

	transfer := gomail.SendFunc(func(from string, to []string, body io.WriterTo) error {
		if err := client.Mail(from); err != nil {
			return err
		}
		for _, addr := range to {
			if err := client.Rcpt(addr); err != nil {
				return err
			}
		}
		w, err := client.Data()
		if err != nil {
			return err
		}
		if _, err := body.WriteTo(w); err != nil {
			_ = w.Close()
			return err
		}
		return w.Close()
	})
	if err := gomail.Send(transfer, msg); err != nil {
		return withContext(ctx, err)
	}

	// the message is accepted once DATA is acknowledged
	_ = client.Quit()
	return nil
}

func (s *smtpSender) dial(ctx context.Context) (net.Conn, error) {
	if s.implicitTLS {
		tlsDialer := tls.Dialer{NetDialer: &s.dialer, Config: s.tlsConfig}
		return tlsDialer.DialContext(ctx, "tcp", s.addr())
	}
	return s.dialer.DialContext(ctx, "tcp", s.addr())
}

func (s *smtpSender) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// withContext reports the context error when it caused err, so callers can
// match context.DeadlineExceeded or context.Canceled.
func withContext(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		// the conn deadline can trip just before the context timer does
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			ctxErr = context.DeadlineExceeded
		}
	}
	if ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
