package event

import "time"

// BusOption configures NewBus.
type BusOption func(*busConfig)

type busConfig struct {
	queueSize      int
	handlerTimeout time.Duration
	panicHandler   PanicHandler
	errorHandler   ErrorHandler
}

func defaultBusConfig() busConfig {
	return busConfig{
		queueSize:      1024,
		handlerTimeout: 5 * time.Second,
	}
}

// WithAsyncQueueSize bounds the async queue. Publish waits while it is full.
func WithAsyncQueueSize(size int) BusOption {
	return func(c *busConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithDefaultTimeout bounds each async handler call. Zero disables the bound.
func WithDefaultTimeout(timeout time.Duration) BusOption {
	return func(c *busConfig) {
		c.handlerTimeout = timeout
	}
}

// WithBusPanicHandler receives handler panics of either delivery mode.
func WithBusPanicHandler(h PanicHandler) BusOption {
	return func(c *busConfig) {
		c.panicHandler = h
	}
}

// WithErrorHandler receives errors returned by sync handlers.
func WithErrorHandler(h ErrorHandler) BusOption {
	return func(c *busConfig) {
		c.errorHandler = h
	}
}
