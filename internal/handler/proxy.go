package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"tuiter-bff/internal/metrics"
	"tuiter-bff/internal/model"
	"tuiter-bff/internal/service"
)

// HeaderGatewayError names the failure class on gateway-generated 500s.
const HeaderGatewayError = "X-Gateway-Error"

var (
	errInternal   = map[string]string{"error": "Internal Server Error"}
	errBadRequest = map[string]string{"error": "Bad Request"}
)

// ProxyHandler forwards API requests to the upstream Tuiter API.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Routes returns the rules this handler serves.
func (h *ProxyHandler) Routes() []model.RouteRule {
	return h.service.Routes()
}

// Handle returns the echo handler for one route rule. The upstream status
// and JSON body are relayed unchanged.
func (h *ProxyHandler) Handle(rule model.RouteRule) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		var body []byte
		if rule.HasBody() {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				// BodyLimit reports oversized bodies as an *echo.HTTPError (413).
				var he *echo.HTTPError
				if errors.As(err, &he) {
					return he
				}
				return h.mapError(c, rule, fmt.Errorf("%w: read body: %v", service.ErrBadRequest, err))
			}
			body = b
		}

		in := &model.InboundRequest{
			Ctx:        req.Context(),
			PathParams: pathParams(c),
			RawQuery:   req.URL.RawQuery,
			Header:     req.Header,
			Body:       body,
		}

		resp, err := h.service.Forward(rule, in)
		if err != nil {
			return h.mapError(c, rule, err)
		}
		return c.JSONBlob(resp.StatusCode, resp.Body)
	}
}

// mapError turns a forwarding error into the gateway's fixed error bodies.
// The cause is logged and exposed only as a coarse reason header.
func (h *ProxyHandler) mapError(c echo.Context, rule model.RouteRule, err error) error {
	reason := service.FailureReason(err)

	if reason == service.ReasonBadRequest {
		h.logger.Info("rejected request",
			"route", rule.Name,
			"err", err,
		)
		return c.JSON(http.StatusBadRequest, errBadRequest)
	}

	level := slog.LevelError
	if reason == service.ReasonCanceled {
		level = slog.LevelWarn
	}
	h.logger.Log(c.Request().Context(), level, "forward failed",
		"route", rule.Name,
		"reason", reason,
		"err", err,
		"path", c.Request().URL.Path,
	)
	if h.metrics != nil {
		h.metrics.UpstreamFailures.WithLabelValues(rule.Name, reason).Inc()
	}

	c.Response().Header().Set(HeaderGatewayError, reason)
	return c.JSON(http.StatusInternalServerError, errInternal)
}

func pathParams(c echo.Context) map[string]string {
	names := c.ParamNames()
	values := c.ParamValues()
	params := make(map[string]string, len(names))
	for i, name := range names {
		if i < len(values) {
			params[name] = values[i]
		}
	}
	return params
}
