// Package workers dispatches pipeline steps to out-of-process workers.
// Invocation is fire-and-forget: the engine never blocks on a worker; the
// worker reports back later through the completion endpoint.
package workers

import "context"

// Invoker asynchronously invokes an external worker by its opaque handle.
// The payload is serialized to JSON before delivery.
type Invoker interface {
	Invoke(ctx context.Context, handle string, payload interface{}) error
}
