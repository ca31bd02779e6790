// Package errors classifies adapter failures for retry decisions.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

const maxUpstreamDetail = 512

// ClassifiedError tags an adapter failure as retryable or not.
type ClassifiedError struct {
	Err        error
	StatusCode int
	Message    string
	Transient  bool
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Transient {
		return fmt.Sprintf("transient error: %v", e.Err)
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewTransientError marks err as retryable.
func NewTransientError(err error, message string) error {
	return &ClassifiedError{Err: err, Message: message, Transient: true}
}

// NewPermanentError marks err as not retryable.
func NewPermanentError(err error, message string) error {
	return &ClassifiedError{Err: err, Message: message}
}

// FromHTTPStatus builds the classified error for a non-2xx upstream reply.
// Timeouts, throttling and 5xx gateway failures are transient.
func FromHTTPStatus(service string, statusCode int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxUpstreamDetail {
		detail = detail[:maxUpstreamDetail] + "..."
	}
	err := fmt.Errorf("%s returned status %d: %s", service, statusCode, detail)
	return &ClassifiedError{
		Err:        err,
		StatusCode: statusCode,
		Message:    err.Error(),
		Transient:  retryableStatus[statusCode],
	}
}

var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransient reports whether another attempt may succeed.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isConnectionFailure(err)
}

// IsPermanent is the complement of IsTransient for non-nil errors.
func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}

var connectionFailureText = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"unexpected eof",
}

func isConnectionFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}

	text := strings.ToLower(err.Error())
	for _, pattern := range connectionFailureText {
		if strings.Contains(text, pattern) {
			return true
		}
	}
	return false
}
