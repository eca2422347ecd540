package model

import (
	"net/http"
	"strings"
)

// RouteRule maps one inbound endpoint onto one upstream endpoint.
// Paths use echo's ":name" syntax for parameters and are relative to the
// gateway prefix (inbound) or the upstream base URL (outbound).
type RouteRule struct {
	Name           string
	Method         string
	Path           string
	UpstreamMethod string
	UpstreamPath   string

	// Auth forwards the caller's Authorization header upstream.
	Auth bool
	// Query lists the query parameters copied to the upstream URL, in order.
	Query []string
	// BodyFields lists the JSON body fields copied to the upstream body.
	BodyFields []string
	// HashPassword replaces a non-empty "password" body field with its hash.
	HashPassword bool
}

// HasBody reports whether the upstream call carries a JSON body.
func (r RouteRule) HasBody() bool {
	return r.UpstreamMethod != http.MethodGet
}

// Params returns the parameter names referenced by path, in order.
func Params(path string) []string {
	var names []string
	for _, seg := range strings.Split(path, "/") {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			names = append(names, seg[1:])
		}
	}
	return names
}

// Routes returns the gateway's route table.
func Routes() []RouteRule {
	return []RouteRule{
		{
			Name:   "login",
			Method: http.MethodPost, Path: "/login",
			UpstreamMethod: http.MethodPost, UpstreamPath: "/login",
			BodyFields: []string{"email", "password"},
		},
		{
			Name:   "get_profile",
			Method: http.MethodGet, Path: "/me/profile",
			UpstreamMethod: http.MethodGet, UpstreamPath: "/me/profile",
			Auth: true,
		},
		{
			Name:   "create_user",
			Method: http.MethodPost, Path: "/users",
			UpstreamMethod: http.MethodPost, UpstreamPath: "/users",
			BodyFields: []string{"name", "email", "password"},
		},
		{
			Name:   "feed",
			Method: http.MethodGet, Path: "/me/feed",
			UpstreamMethod: http.MethodGet, UpstreamPath: "/me/feed",
			Auth:  true,
			Query: []string{"page", "only_parents"},
		},
		{
			Name:   "like_tuit",
			Method: http.MethodPost, Path: "/me/tuits/:id/likes",
			UpstreamMethod: http.MethodPost, UpstreamPath: "/me/tuits/:id/likes",
			Auth: true,
		},
		{
			Name:   "unlike_tuit",
			Method: http.MethodDelete, Path: "/me/tuits/:id/likes",
			UpstreamMethod: http.MethodDelete, UpstreamPath: "/me/tuits/:id/likes",
			Auth: true,
		},
		{
			Name:   "create_tuit",
			Method: http.MethodPost, Path: "/me/tuits",
			UpstreamMethod: http.MethodPost, UpstreamPath: "/me/tuits",
			Auth:       true,
			BodyFields: []string{"message"},
		},
		{
			Name:   "update_profile",
			Method: http.MethodPut, Path: "/me/profile",
			UpstreamMethod: http.MethodPut, UpstreamPath: "/me/profile",
			Auth:         true,
			BodyFields:   []string{"name", "avatar_url", "password"},
			HashPassword: true,
		},
		{
			Name:   "get_tuit",
			Method: http.MethodGet, Path: "/me/tuits/:id",
			UpstreamMethod: http.MethodGet, UpstreamPath: "/me/tuits/:id",
			Auth: true,
		},
		{
			Name:   "list_replies",
			Method: http.MethodGet, Path: "/me/tuits/:id/replies",
			UpstreamMethod: http.MethodGet, UpstreamPath: "/me/tuits/:id/replies",
			Auth: true,
		},
		{
			Name:   "create_reply",
			Method: http.MethodPost, Path: "/me/tuits/:id/replies",
			UpstreamMethod: http.MethodPost, UpstreamPath: "/me/tuits/:id/replies",
			Auth:       true,
			BodyFields: []string{"message"},
		},
	}
}
