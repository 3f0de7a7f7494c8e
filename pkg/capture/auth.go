package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Authorizer answers and requests camera/microphone permission.
type Authorizer interface {
	Status(media MediaType) AuthorizationStatus
	// RequestAccess delivers the decision on the callback context.
	RequestAccess(media MediaType, onResult func(granted bool))
	// Await is the blocking form, used from the session worker.
	Await(ctx context.Context, media MediaType) bool
}

// Gate is the default Authorizer. The host is prompted at most once per
// media type; later requests get the cached decision.
type Gate struct {
	host      PermissionHost
	callbacks Dispatcher
	logger    *slog.Logger

	prompts singleflight.Group

	mu      sync.Mutex
	decided map[MediaType]bool
}

// NewGate wraps a host permission API. With nil callbacks, RequestAccess
// results run on the goroutine that waited for the decision.
func NewGate(host PermissionHost, callbacks Dispatcher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if callbacks == nil {
		callbacks = DispatcherFunc(func(fn func()) { fn() })
	}
	return &Gate{
		host:      host,
		callbacks: callbacks,
		logger:    logger.With("component", "auth"),
		decided:   make(map[MediaType]bool),
	}
}

// Status reports the host status, falling back to a cached decision while
// the host still reports not-determined.
func (g *Gate) Status(media MediaType) AuthorizationStatus {
	status := g.host.AuthorizationStatus(media)
	if status != AuthNotDetermined {
		return status
	}
	granted, ok := g.cached(media)
	switch {
	case !ok:
		return AuthNotDetermined
	case granted:
		return AuthAuthorized
	default:
		return AuthDenied
	}
}

// RequestAccess prompts if needed and calls onResult on the callback context.
func (g *Gate) RequestAccess(media MediaType, onResult func(granted bool)) {
	go func() {
		granted := g.Await(context.Background(), media)
		g.callbacks.Dispatch(func() { onResult(granted) })
	}()
}

// Await returns whether access to media is granted, prompting the host the
// first time the status is undetermined. Concurrent callers share one prompt.
func (g *Gate) Await(ctx context.Context, media MediaType) bool {
	switch g.host.AuthorizationStatus(media) {
	case AuthAuthorized:
		return true
	case AuthDenied, AuthRestricted:
		return false
	}
	if granted, ok := g.cached(media); ok {
		return granted
	}

	for attempt := 0; ; attempt++ {
		ch := g.prompts.DoChan(media.String(), g.prompt(ctx, media))
		select {
		case r := <-ch:
			if attempt == 0 && r.Err != nil && ctx.Err() == nil && isContextErr(r.Err) {
				// joined a prompt whose caller gave up; ask again
				continue
			}
			granted, _ := r.Val.(bool)
			return r.Err == nil && granted
		case <-ctx.Done():
			return false
		}
	}
}

func (g *Gate) prompt(ctx context.Context, media MediaType) func() (any, error) {
	return func() (any, error) {
		if granted, ok := g.cached(media); ok {
			return granted, nil
		}
		g.logger.Info("Requesting access", "media", media)
		granted, err := g.host.RequestAccess(ctx, media)
		if err != nil {
			g.logger.Error("Access request failed", "media", media, "error", err)
			if isContextErr(err) {
				// The prompt never resolved; allow a later request.
				return false, err
			}
			granted = false
		}
		g.mu.Lock()
		g.decided[media] = granted
		g.mu.Unlock()
		g.logger.Info("Access decided", "media", media, "granted", granted)
		return granted, nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (g *Gate) cached(media MediaType) (granted, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	granted, ok = g.decided[media]
	return granted, ok
}
