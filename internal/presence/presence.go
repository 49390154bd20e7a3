// Package presence wraps the interpreter availability directory. Accepting an
// on-demand appointment takes the interpreter out of the on-demand pool.
package presence

import "context"

type Directory interface {
	SetOffline(ctx context.Context, interpreterID string) error
}

type Noop struct{}

func (Noop) SetOffline(context.Context, string) error { return nil }
