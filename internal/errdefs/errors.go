// Package errdefs defines the error kinds shared by the ingest pipeline and
// the query API. Kinds are matched with errors.Is; messages are wrapped with
// fmt.Errorf("%w") at the call site.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingFile marks a file that vanished between discovery and
	// processing. Not retried until the next scan reconciles it.
	ErrMissingFile = errors.New("file missing on disk")

	// ErrUnreadableMedia marks a file the decoder rejects. Terminal for the
	// file until a manual retry.
	ErrUnreadableMedia = errors.New("unreadable media")

	// ErrStageTransient marks an I/O or decoder error inside a stage. The
	// job is failed and can be re-queued with reset-failed.
	ErrStageTransient = errors.New("transient stage error")

	// ErrModelNotReady marks a model host that failed to load. The job goes
	// back to pending and the worker backs off.
	ErrModelNotReady = errors.New("model host not ready")

	// ErrConflict marks a concurrent-write conflict. Retried by the caller.
	ErrConflict = errors.New("conflict")

	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

func BadRequest(why string) error {
	return fmt.Errorf("%s: %w", why, ErrBadRequest)
}
