// Package model defines shared types for the gateway.
package model

import (
	"context"
	"net/http"
)

// InboundRequest carries the parts of a client request the gateway reads.
type InboundRequest struct {
	Ctx context.Context
	// PathParams holds named route parameters, e.g. "id" for /me/tuits/:id.
	PathParams map[string]string
	// RawQuery is the inbound query string as received, without the leading '?'.
	RawQuery string
	Header   http.Header
	Body     []byte
}

// ForwardRequest is the fully resolved outbound call for one inbound request.
type ForwardRequest struct {
	Route  string
	Method string
	URL    string
	Header http.Header
	Body   []byte // nil means no body
}

// ForwardResponse is the upstream reply relayed back to the caller.
type ForwardResponse struct {
	StatusCode int
	Body       []byte
}
