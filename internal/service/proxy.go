// Package service implements the core forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"tuiter-bff/internal/config"
	"tuiter-bff/internal/model"
	"tuiter-bff/internal/password"
)

var (
	// ErrBadRequest is returned when the inbound body cannot be turned into an upstream body.
	ErrBadRequest = errors.New("bad request")
	// ErrInvalidUpstreamResponse is returned when the upstream body is not valid JSON.
	ErrInvalidUpstreamResponse = errors.New("upstream response is not valid JSON")
)

// ApplicationTokenHeader carries the static application credential upstream.
const ApplicationTokenHeader = "Application-Token"

const userAgent = "tuiter-bff/1.0"

// defaultUpstreamHosts is always accepted; upstream.allowed_hosts extends it.
var defaultUpstreamHosts = []string{"tuiter.fragua.com.ar"}

// Upstream performs one outbound call.
type Upstream interface {
	Do(ctx context.Context, fr *model.ForwardRequest) (*model.ForwardResponse, error)
}

// ProxyService turns inbound requests into upstream calls according to the route table.
type ProxyService struct {
	client  Upstream
	hasher  password.Hasher
	cfg     *config.Config
	logger  *slog.Logger
	baseURL *url.URL
	routes  []model.RouteRule
}

// NewProxyService creates a ProxyService for the default route table.
// The upstream host must be in the allowlist.
func NewProxyService(c Upstream, h password.Hasher, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	s, err := newProxyService(c, h, cfg, logger, model.Routes())
	if err != nil {
		return nil, err
	}

	allowed := append(append([]string{}, defaultUpstreamHosts...), cfg.Upstream.AllowedHosts...)
	host := s.baseURL.Hostname()
	for _, a := range allowed {
		if strings.EqualFold(a, host) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("upstream host %q is not in the allowlist", host)
}

// NewProxyServiceForTest creates a ProxyService without host allowlist validation.
// This is intended only for tests that use httptest servers on localhost.
func NewProxyServiceForTest(c Upstream, h password.Hasher, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	return newProxyService(c, h, cfg, logger, model.Routes())
}

func newProxyService(c Upstream, h password.Hasher, cfg *config.Config, logger *slog.Logger, routes []model.RouteRule) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""

	if err := ValidateRoutes(routes); err != nil {
		return nil, err
	}

	return &ProxyService{
		client:  c,
		hasher:  h,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		baseURL: u,
		routes:  routes,
	}, nil
}

// Routes returns the route table the service forwards.
func (s *ProxyService) Routes() []model.RouteRule {
	return s.routes
}

// Forward performs the upstream call for rule and returns the upstream status
// and JSON body unchanged. Upstream 4xx/5xx replies are not errors.
func (s *ProxyService) Forward(rule model.RouteRule, in *model.InboundRequest) (*model.ForwardResponse, error) {
	fr, err := s.Build(rule, in)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"route", rule.Name,
		"method", fr.Method,
		"url", fr.URL,
	)

	resp, err := s.client.Do(in.Ctx, fr)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", rule.Name, err)
	}

	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("forward %s: %w (status %d, %d bytes)",
			rule.Name, ErrInvalidUpstreamResponse, resp.StatusCode, len(resp.Body))
	}
	return resp, nil
}

// Build resolves the outbound request for rule without sending it.
func (s *ProxyService) Build(rule model.RouteRule, in *model.InboundRequest) (*model.ForwardRequest, error) {
	upstreamURL, err := s.buildUpstreamURL(rule, in.PathParams, in.RawQuery)
	if err != nil {
		return nil, err
	}

	var body []byte
	if rule.HasBody() {
		body, err = s.buildBody(rule, in.Body)
		if err != nil {
			return nil, err
		}
	}

	return &model.ForwardRequest{
		Route:  rule.Name,
		Method: rule.UpstreamMethod,
		URL:    upstreamURL,
		Header: s.buildHeaders(rule, in.Header),
		Body:   body,
	}, nil
}

// buildUpstreamURL substitutes path params and copies the rule's query
// parameters verbatim. Absent query parameters are omitted.
func (s *ProxyService) buildUpstreamURL(rule model.RouteRule, params map[string]string, rawQuery string) (string, error) {
	segs := strings.Split(rule.UpstreamPath, "/")
	for i, seg := range segs {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		v, ok := params[seg[1:]]
		if !ok {
			return "", fmt.Errorf("route %s: missing path param %q", rule.Name, seg[1:])
		}
		segs[i] = v
	}

	target := s.baseURL.String() + strings.Join(segs, "/")
	if q := pickQuery(rawQuery, rule.Query); q != "" {
		target += "?" + q
	}
	return target, nil
}

// pickQuery returns the raw "k=v" pairs of rawQuery whose key is in keys,
// ordered by keys and then by appearance. Values are not re-encoded.
func pickQuery(rawQuery string, keys []string) string {
	if rawQuery == "" || len(keys) == 0 {
		return ""
	}
	pairs := strings.Split(rawQuery, "&")

	var out []string
	for _, key := range keys {
		for _, pair := range pairs {
			k, _, _ := strings.Cut(pair, "=")
			if uk, err := url.QueryUnescape(k); err == nil {
				k = uk
			}
			if k == key {
				out = append(out, pair)
			}
		}
	}
	return strings.Join(out, "&")
}

// buildBody copies the rule's whitelisted fields from the inbound JSON object,
// in rule order. Missing fields are omitted; an empty inbound body is {}.
func (s *ProxyService) buildBody(rule model.RouteRule, raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: body must be a JSON object: %v", ErrBadRequest, err)
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, name := range rule.BodyFields {
		v, ok := fields[name]
		if !ok {
			continue
		}
		if rule.HashPassword && name == "password" {
			hashed, keep, err := s.hashPassword(v)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
			v = hashed
		}

		if n > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrBadRequest, name, err)
		}
		n++
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// hashPassword returns the hashed password as a JSON string. keep is false
// when the supplied value is empty (null, false, 0 or ""), in which case the
// field is left out of the upstream body.
func (s *ProxyService) hashPassword(v json.RawMessage) (hashed json.RawMessage, keep bool, err error) {
	switch string(bytes.TrimSpace(v)) {
	case "null", "false", "0", `""`:
		return nil, false, nil
	}

	var plain string
	if err := json.Unmarshal(v, &plain); err != nil {
		return nil, false, fmt.Errorf("%w: password must be a string", ErrBadRequest)
	}
	if plain == "" {
		return nil, false, nil
	}

	h, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	out, err := json.Marshal(h)
	if err != nil {
		return nil, false, fmt.Errorf("encode password hash: %w", err)
	}
	return out, true, nil
}

// buildHeaders returns the only headers sent upstream. Authorization is
// forwarded as received, or empty, and only for authenticated routes.
func (s *ProxyService) buildHeaders(rule model.RouteRule, src http.Header) http.Header {
	dst := make(http.Header)
	dst.Set("Content-Type", "application/json")
	dst.Set("Accept", "application/json")
	dst.Set("User-Agent", userAgent)
	dst.Set(ApplicationTokenHeader, s.cfg.Tuiter.ApplicationToken)
	if rule.Auth {
		dst["Authorization"] = []string{src.Get("Authorization")}
	}
	return dst
}

// ValidateRoutes checks the route table for duplicate or malformed rules.
func ValidateRoutes(routes []model.RouteRule) error {
	seen := make(map[string]bool, len(routes))
	names := make(map[string]bool, len(routes))
	for _, r := range routes {
		if r.Name == "" {
			return fmt.Errorf("route %s %s: name is required", r.Method, r.Path)
		}
		if names[r.Name] {
			return fmt.Errorf("route %s: duplicate name", r.Name)
		}
		names[r.Name] = true

		if r.Method == "" || r.UpstreamMethod == "" {
			return fmt.Errorf("route %s: method and upstream method are required", r.Name)
		}
		if !strings.HasPrefix(r.Path, "/") || !strings.HasPrefix(r.UpstreamPath, "/") {
			return fmt.Errorf("route %s: paths must start with '/'", r.Name)
		}

		key := r.Method + " " + r.Path
		if seen[key] {
			return fmt.Errorf("route %s: duplicate endpoint %s", r.Name, key)
		}
		seen[key] = true

		inbound := make(map[string]bool)
		for _, p := range model.Params(r.Path) {
			inbound[p] = true
		}
		for _, p := range model.Params(r.UpstreamPath) {
			if !inbound[p] {
				return fmt.Errorf("route %s: upstream path param %q not in inbound path %s", r.Name, p, r.Path)
			}
		}

		if r.HashPassword && !slices.Contains(r.BodyFields, "password") {
			return fmt.Errorf("route %s: HashPassword set but password is not a body field", r.Name)
		}
	}
	return nil
}

