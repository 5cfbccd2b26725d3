package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for monitor request metrics.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures the host time of one system call.
type Timer struct {
	start   time.Time
	metrics *Metrics
	syscall string
}

// NewTimer starts timing a system call.
func NewTimer(metrics *Metrics, syscall string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		syscall: syscall,
	}
}

// Stop records the call with its result label.
func (t *Timer) Stop(result string) {
	t.metrics.RecordSyscall(t.syscall, result, time.Since(t.start))
}
