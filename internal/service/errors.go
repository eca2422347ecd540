package service

import (
	"context"
	"errors"
	"net"
	"net/url"

	"tuiter-bff/internal/client"
)

// Failure reasons reported for forwarding errors. Callers always see the
// same 500 body; the reason is for logs, metrics and the X-Gateway-Error header.
const (
	ReasonBadRequest      = "bad_request"
	ReasonTimeout         = "timeout"
	ReasonCanceled        = "canceled"
	ReasonUnreachable     = "unreachable"
	ReasonConnection      = "connection_failed"
	ReasonInvalidResponse = "invalid_response"
	ReasonInternal        = "internal"
)

// FailureReason classifies an error returned by Forward.
func FailureReason(err error) string {
	if errors.Is(err, ErrBadRequest) {
		return ReasonBadRequest
	}
	if errors.Is(err, ErrInvalidUpstreamResponse) || errors.Is(err, client.ErrResponseTooLarge) {
		return ReasonInvalidResponse
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonUnreachable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ReasonConnection
	}
	return ReasonInternal
}
