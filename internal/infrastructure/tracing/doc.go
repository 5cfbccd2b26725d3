/*
Package tracing records spans for kernel operations.

# Overview

With KERNEL_TRACE enabled the kernel opens one span per system call. Each
environment gets its own trace id at creation, so every call an
environment makes lands in one trace. The monitor server traces its HTTP
requests with the same tracer, propagating X-Trace-ID and X-Span-ID.

Span and trace ids are prefixed ULIDs from the shared id package.

# Usage

	tracer := tracing.New("kernel", logger)
	defer tracer.Close()

	span := tracer.StartRootSpan(trace, "sys_ipc_try_send")
	span.SetTag("envid", "00001001")
	span.Finish()
	tracer.Submit(span)

	router.Use(tracing.HTTPMiddleware(tracer))

# Collection

Finished spans go through a buffered channel (1024 spans) to a collector
goroutine that logs them through zap. A full buffer drops the span and
counts it (Tracer.Dropped); the first drop is logged as a warning.
*/
package tracing
