package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// TLSMode selects how the relay connection is secured
type TLSMode string

const (
	TLSNone     TLSMode = "none"
	TLSStartTLS TLSMode = "starttls"
	TLSImplicit TLSMode = "implicit"
)

// SMTPOptions configures the relay connection
type SMTPOptions struct {
	Host               string
	Port               int
	TLS                TLSMode
	Username           string
	Password           string
	Hostname           string // HELO name and Message-ID domain
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// SMTPSender submits messages to a single relay
type SMTPSender struct {
	opts   SMTPOptions
	signer *Signer
	logger *slog.Logger
}

// NewSMTPSender creates a relay sender. signer may be nil.
func NewSMTPSender(opts SMTPOptions, signer *Signer, logger *slog.Logger) *SMTPSender {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TLS == "" {
		opts.TLS = TLSStartTLS
	}
	return &SMTPSender{
		opts:   opts,
		signer: signer,
		logger: logger.With("component", "smtp"),
	}
}

// Send builds, optionally signs and submits msg
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	data, err := msg.Build(s.opts.Hostname)
	if err != nil {
		return &DeliveryError{Temporary: false, Message: err.Error()}
	}

	if s.signer != nil {
		signed, err := s.signer.Sign(data)
		if err != nil {
			s.logger.Warn("DKIM signing failed, sending unsigned",
				"domain", s.signer.Domain(),
				"error", err,
			)
		} else {
			data = signed
		}
	}

	_, from := splitAddress(msg.From)
	_, to := splitAddress(msg.To)
	return s.deliver(ctx, from, to, data)
}

func (s *SMTPSender) deliver(ctx context.Context, from, to string, data []byte) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	dialer := &net.Dialer{Timeout: s.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.opts.Timeout))
	}

	// Unblock any pending read or write when the caller gives up
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	tlsConfig := &tls.Config{
		ServerName:         s.opts.Host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: s.opts.InsecureSkipVerify,
	}

	var client *smtp.Client
	switch s.opts.TLS {
	case TLSImplicit:
		client = smtp.NewClient(tls.Client(conn, tlsConfig))
	case TLSStartTLS:
		// Greets and upgrades before anything else is sent
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			if ctx.Err() != nil {
				return &DeliveryError{Temporary: true, Message: ctx.Err().Error()}
			}
			return categorizeError(err, "STARTTLS")
		}
	default:
		client = smtp.NewClient(conn)
	}
	defer client.Close()

	if err := s.session(client, from, to, data); err != nil {
		if ctx.Err() != nil {
			return &DeliveryError{Temporary: true, Message: ctx.Err().Error()}
		}
		return err
	}

	s.logger.Info("message submitted", "relay", addr, "to", to, "size", len(data))
	return nil
}

// session runs the transaction. After STARTTLS the client has not greeted
// the upgraded connection yet, so Hello still applies.
func (s *SMTPSender) session(client *smtp.Client, from, to string, data []byte) error {
	if s.opts.Hostname != "" {
		if err := client.Hello(s.opts.Hostname); err != nil {
			return categorizeError(err, "HELO")
		}
	}

	if s.opts.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return &DeliveryError{Temporary: false, Message: "relay does not support AUTH"}
		}
		auth := sasl.NewPlainClient("", s.opts.Username, s.opts.Password)
		if err := client.Auth(auth); err != nil {
			return categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return categorizeError(err, "MAIL FROM")
	}
	if err := client.Rcpt(to, nil); err != nil {
		return categorizeError(err, fmt.Sprintf("RCPT TO %s", to))
	}

	wc, err := client.Data()
	if err != nil {
		return categorizeError(err, "DATA")
	}
	if _, err := bytes.NewReader(data).WriteTo(wc); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}
	if err := wc.Close(); err != nil {
		return categorizeError(err, "DATA close")
	}

	client.Quit()
	return nil
}
