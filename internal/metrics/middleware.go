package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// errorClasses names the statuses the UI and API actually produce
var errorClasses = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusUnauthorized:          "auth_error",
	http.StatusForbidden:             "auth_error",
	http.StatusNotFound:              "not_found",
	http.StatusRequestEntityTooLarge: "too_large",
	http.StatusTooManyRequests:       "rate_limited",
}

// HTTPMiddleware counts requests per route and times them. Requests pass
// straight through while no global Metrics is set.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := Global()
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		route := routeLabel(r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		m.HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		if code >= 400 {
			m.HTTPErrorsTotal.WithLabelValues(categorizeStatus(code)).Inc()
		}
	})
}

// routeLabel is the chi pattern once routing is done. Unrouted paths keep
// their shape with ids replaced.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	segments := strings.Split(r.URL.Path, "/")
	for i, seg := range segments {
		if isOpaqueID(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// isOpaqueID matches row ids and canonical upload ids
func isOpaqueID(seg string) bool {
	if seg == "" {
		return false
	}
	if _, err := strconv.ParseUint(seg, 10, 64); err == nil {
		return true
	}
	if len(seg) != 36 {
		return false
	}
	_, err := uuid.Parse(seg)
	return err == nil
}

func categorizeStatus(code int) string {
	if class, ok := errorClasses[code]; ok {
		return class
	}
	switch code / 100 {
	case 5:
		return "server_error"
	case 4:
		return "client_error"
	}
	return "unknown"
}
