package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingHost holds RequestAccess until release is closed.
type blockingHost struct {
	*fakeHost
	release chan struct{}
}

func (h *blockingHost) RequestAccess(ctx context.Context, media MediaType) (bool, error) {
	select {
	case <-h.release:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return h.fakeHost.RequestAccess(ctx, media)
}

func TestGateStatusPassesThroughHost(t *testing.T) {
	host := newFakeHost()
	g := NewGate(host, DispatcherFunc(func(fn func()) { fn() }), nil)

	for _, s := range []AuthorizationStatus{AuthAuthorized, AuthDenied, AuthRestricted, AuthNotDetermined} {
		host.setStatus(MediaVideo, s)
		assert.Equal(t, s, g.Status(MediaVideo))
	}
}

func TestGateAwait(t *testing.T) {
	tests := []struct {
		name    string
		status  AuthorizationStatus
		grant   bool
		want    bool
		prompts int
	}{
		{"authorized", AuthAuthorized, false, true, 0},
		{"denied", AuthDenied, true, false, 0},
		{"restricted", AuthRestricted, true, false, 0},
		{"prompt granted", AuthNotDetermined, true, true, 1},
		{"prompt refused", AuthNotDetermined, false, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newFakeHost()
			host.setStatus(MediaAudio, tt.status)
			host.grant[MediaAudio] = tt.grant
			g := NewGate(host, nil, nil)

			assert.Equal(t, tt.want, g.Await(context.Background(), MediaAudio))
			assert.Equal(t, tt.want, g.Await(context.Background(), MediaAudio))
			assert.Equal(t, tt.prompts, host.requestCount(MediaAudio))
		})
	}
}

func TestGateCachesDecisionWhenHostForgets(t *testing.T) {
	host := newFakeHost()
	host.setStatus(MediaVideo, AuthNotDetermined)
	host.grant[MediaVideo] = true
	g := NewGate(host, nil, nil)

	require.True(t, g.Await(context.Background(), MediaVideo))
	host.setStatus(MediaVideo, AuthNotDetermined)
	assert.Equal(t, AuthAuthorized, g.Status(MediaVideo))
	assert.True(t, g.Await(context.Background(), MediaVideo))
	assert.Equal(t, 1, host.requestCount(MediaVideo))
}

func TestGateConcurrentCallersSharePrompt(t *testing.T) {
	base := newFakeHost()
	base.setStatus(MediaVideo, AuthNotDetermined)
	base.grant[MediaVideo] = true
	host := &blockingHost{fakeHost: base, release: make(chan struct{})}
	g := NewGate(host, nil, nil)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = g.Await(context.Background(), MediaVideo)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(host.release)
	wg.Wait()

	for _, r := range results {
		assert.True(t, r)
	}
	assert.Equal(t, 1, base.requestCount(MediaVideo))
}

func TestGateCancelledPromptIsNotCached(t *testing.T) {
	base := newFakeHost()
	base.setStatus(MediaVideo, AuthNotDetermined)
	base.grant[MediaVideo] = true
	host := &blockingHost{fakeHost: base, release: make(chan struct{})}
	g := NewGate(host, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, g.Await(ctx, MediaVideo))
	assert.Equal(t, AuthNotDetermined, g.Status(MediaVideo))

	close(host.release)
	assert.True(t, g.Await(context.Background(), MediaVideo))
}

func TestGateRequestAccessDispatches(t *testing.T) {
	host := newFakeHost()
	host.setStatus(MediaVideo, AuthNotDetermined)
	host.grant[MediaVideo] = true
	q := NewQueue("callbacks", nil)
	defer q.Close()
	g := NewGate(host, q, nil)

	got := make(chan bool, 1)
	g.RequestAccess(MediaVideo, func(granted bool) { got <- granted })
	select {
	case granted := <-got:
		assert.True(t, granted)
	case <-time.After(waitTimeout):
		t.Fatal("no access result")
	}
}

func TestGateRequestAccessWithoutDispatcher(t *testing.T) {
	host := newFakeHost()
	host.setStatus(MediaAudio, AuthNotDetermined)
	g := NewGate(host, nil, nil)

	got := make(chan bool, 1)
	g.RequestAccess(MediaAudio, func(granted bool) { got <- granted })
	select {
	case granted := <-got:
		assert.False(t, granted)
	case <-time.After(waitTimeout):
		t.Fatal("no access result")
	}
	assert.Equal(t, AuthDenied, g.Status(MediaAudio))
}
