// Package dispatch runs bus handlers.
//
// Call runs one handler in the caller's goroutine and turns a panic into
// an Outcome. Queue runs handlers on one background goroutine in the order
// they were pushed, which keeps async subscribers in publish order.
package dispatch
