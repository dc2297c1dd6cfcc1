package mail

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/jhillyerd/enmime"
)

const contentTypePDF = "application/pdf"

// Attachment is a file carried by a message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is one outbound mail with a single recipient
type Message struct {
	From        string // may include a display name
	ReplyTo     string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
	Date        time.Time
}

// PDFAttachment wraps a single-page document as an attachment
func PDFAttachment(page int, data []byte) Attachment {
	return Attachment{
		Filename:    fmt.Sprintf("pagina-%d.pdf", page),
		ContentType: contentTypePDF,
		Data:        data,
	}
}

// Build encodes the message as RFC 5322 bytes. hostname is used for the
// Message-ID.
func (m *Message) Build(hostname string) ([]byte, error) {
	if m.To == "" {
		return nil, fmt.Errorf("failed to build message: recipient not set")
	}

	fromName, fromAddr := splitAddress(m.From)
	toName, toAddr := splitAddress(m.To)

	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	b := enmime.Builder().
		From(fromName, fromAddr).
		To(toName, toAddr).
		Subject(m.Subject).
		Date(date).
		Text([]byte(m.Body)).
		Header("X-Mailer", "pagesend")

	if m.ReplyTo != "" {
		name, addr := splitAddress(m.ReplyTo)
		b = b.ReplyTo(name, addr)
	}

	id, err := messageID(hostname)
	if err != nil {
		return nil, err
	}
	b = b.Header("Message-ID", id)

	for _, a := range m.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		b = b.AddAttachment(a.Data, contentType, a.Filename)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

var maxMessageIDRand = big.NewInt(1 << 62)

// messageID returns <nanotime.pid.random@hostname>
func messageID(hostname string) (string, error) {
	if hostname == "" {
		hostname = "localhost"
	}
	n, err := rand.Int(rand.Reader, maxMessageIDRand)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<%d.%d.%d@%s>", time.Now().UnixNano(), os.Getpid(), n, hostname), nil
}
