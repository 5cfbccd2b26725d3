package tracing

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware opens one span per monitor request. It continues the
// trace named by X-Trace-ID and X-Span-ID when the client sends them and
// echoes the ids back.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		trace, parent := ExtractTraceContext(map[string]string{
			"X-Trace-ID": c.GetHeader("X-Trace-ID"),
			"X-Span-ID":  c.GetHeader("X-Span-ID"),
		})
		if trace != "" {
			ctx = context.WithValue(ctx, traceIDKey, trace)
			if parent != "" {
				ctx = context.WithValue(ctx, spanIDKey, parent)
			}
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, route)
		span.SetTag("http.method", c.Request.Method)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", string(span.TraceID))
		c.Header("X-Span-ID", string(span.SpanID))

		c.Next()

		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if err := c.Errors.Last(); err != nil {
			span.SetError(err)
		}
		span.Finish()
		tracer.Submit(span)
	}
}
