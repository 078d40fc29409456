package tracing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// GinMiddleware traces admin API requests. Probe and scrape endpoints are
// left out so they do not drown the transform traces.
func GinMiddleware(serviceName string, untracedPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(untracedPaths))
	for _, p := range untracedPaths {
		skip[p] = struct{}{}
	}

	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, skipped := skip[r.URL.Path]
			return !skipped
		}),
	)
}
