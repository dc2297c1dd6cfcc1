package mail

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-smtp"
)

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && smtpErr.Code >= 400 {
		return &DeliveryError{Temporary: smtpErr.Code < 500, Message: msg}
	}

	if m := smtpCodePattern.FindStringSubmatch(err.Error()); len(m) > 1 {
		return &DeliveryError{Temporary: !strings.HasPrefix(m[1], "5"), Message: msg}
	}

	// The relay lacks a required extension; retrying will not change that
	if strings.Contains(err.Error(), "doesn't support") {
		return &DeliveryError{Temporary: false, Message: msg}
	}

	// Network and protocol errors without a code are retryable
	return &DeliveryError{Temporary: true, Message: msg}
}

// IsTemporaryError checks if the error is temporary
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}
