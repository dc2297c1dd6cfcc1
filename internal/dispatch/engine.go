// Package dispatch mails confirmed pages to their recipients, one page at
// a time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxzi/pagesend/internal/identifier"
	"github.com/foxzi/pagesend/internal/mail"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/models"
	"github.com/foxzi/pagesend/internal/ratelimit"
)

var (
	ErrSessionExpired = errors.New("uploadId inválido o expirado")
	ErrInvalidSender  = errors.New("senderEmail requerido y válido")
)

// ReasonNoValidEmail is the skip reason for a selection without a usable address
const ReasonNoValidEmail = "sin email válido"

const (
	DefaultSubject     = "Documento"
	DefaultBody        = "Adjuntamos su documento."
	DefaultItemTimeout = 60 * time.Second
)

// Sessions looks up uploaded documents
type Sessions interface {
	Get(id string) ([]byte, bool)
}

// Splitter cuts one page out of a document
type Splitter interface {
	SplitPage(data []byte, index int) ([]byte, error)
}

// Limiter grants send quota per recipient. Only delivered messages are
// recorded against it.
type Limiter interface {
	Check(ctx context.Context, recipient string) (*ratelimit.Result, error)
	Record(ctx context.Context, recipient string)
}

// Config holds dispatch settings
type Config struct {
	From           string // envelope and header sender
	ItemTimeout    time.Duration
	DefaultSubject string
	DefaultBody    string
}

// Request is one dispatch submitted by the operator
type Request struct {
	UploadID    string
	Selections  []models.Selection
	Subject     string
	Body        string
	SenderEmail string // becomes Reply-To
}

// Engine runs dispatches
type Engine struct {
	sessions Sessions
	splitter Splitter
	sender   mail.Sender
	limiter  Limiter
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an engine. limiter may be nil.
func NewEngine(sessions Sessions, splitter Splitter, sender mail.Sender, limiter Limiter, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = DefaultItemTimeout
	}
	if cfg.DefaultSubject == "" {
		cfg.DefaultSubject = DefaultSubject
	}
	if cfg.DefaultBody == "" {
		cfg.DefaultBody = DefaultBody
	}
	return &Engine{
		sessions: sessions,
		splitter: splitter,
		sender:   sender,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger.With("component", "dispatch"),
	}
}

// Dispatch sends every selection in order and returns one result per
// selection. A failing item never stops the ones after it. Only a bad
// sender or an unknown upload fails the whole request, before anything is
// sent.
func (e *Engine) Dispatch(ctx context.Context, req Request) ([]models.DispatchResult, error) {
	sender := strings.TrimSpace(req.SenderEmail)
	if !identifier.IsEmail(sender) {
		return nil, ErrInvalidSender
	}

	doc, ok := e.sessions.Get(req.UploadID)
	if !ok {
		return nil, ErrSessionExpired
	}

	subject := req.Subject
	if strings.TrimSpace(subject) == "" {
		subject = e.cfg.DefaultSubject
	}
	body := req.Body
	if strings.TrimSpace(body) == "" {
		body = e.cfg.DefaultBody
	}

	results := make([]models.DispatchResult, 0, len(req.Selections))
	counts := map[models.DispatchStatus]int{}

	for _, sel := range req.Selections {
		start := time.Now()
		res := e.dispatchOne(ctx, doc, sel, sender, subject, body)
		results = append(results, res)
		counts[res.Status]++

		metrics.IncDispatchItem(string(res.Status))
		metrics.ObserveDispatchDuration(time.Since(start).Seconds())

		logger := e.logger.With("upload_id", req.UploadID, "page", sel.Page, "to", sel.Email)
		switch res.Status {
		case models.StatusSent:
			logger.Info("page sent")
		case models.StatusSkipped:
			logger.Info("page skipped", "reason", res.Reason)
		default:
			logger.Warn("page not sent", "error", res.Error)
		}
	}

	e.logger.Info("dispatch finished",
		"upload_id", req.UploadID,
		"total", len(results),
		"sent", counts[models.StatusSent],
		"skipped", counts[models.StatusSkipped],
		"errors", counts[models.StatusError],
	)
	return results, nil
}

func (e *Engine) dispatchOne(ctx context.Context, doc []byte, sel models.Selection, replyTo, subject, body string) models.DispatchResult {
	res := models.DispatchResult{Page: sel.Page, Email: sel.Email}
	fail := func(err error) models.DispatchResult {
		res.Status = models.StatusError
		res.Error = err.Error()
		return res
	}

	// Once the request is gone nothing else is attempted
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	to := strings.TrimSpace(sel.Email)
	if !identifier.IsEmail(to) {
		res.Status = models.StatusSkipped
		res.Reason = ReasonNoValidEmail
		return res
	}

	itemCtx, cancel := context.WithTimeout(ctx, e.cfg.ItemTimeout)
	defer cancel()

	page, err := e.splitter.SplitPage(doc, sel.Page-1)
	if err != nil {
		return fail(err)
	}

	if e.limiter != nil {
		allowed, err := e.limiter.Check(itemCtx, to)
		if err != nil {
			return fail(err)
		}
		if !allowed.Allowed {
			return fail(fmt.Errorf("límite de envío excedido (%s), reintentar en %s",
				allowed.DeniedBy, allowed.RetryAfter.Round(time.Second)))
		}
	}

	msg := &mail.Message{
		From:        e.cfg.From,
		ReplyTo:     replyTo,
		To:          to,
		Subject:     subject,
		Body:        body,
		Attachments: []mail.Attachment{mail.PDFAttachment(sel.Page, page)},
	}
	if err := e.sender.Send(itemCtx, msg); err != nil {
		return fail(err)
	}
	if e.limiter != nil {
		e.limiter.Record(ctx, to)
	}

	res.Status = models.StatusSent
	return res
}
