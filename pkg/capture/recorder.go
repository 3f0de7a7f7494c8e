package capture

import (
	"sync"

	"github.com/google/uuid"
)

// recording is one start/stop attempt. It owns the recorder's single slot
// from StartVideoRecording until the output reports the file finished.
type recording struct {
	id       string
	path     string
	stopping bool
	stopDone func(path string, err error)
}

// recorder guards the in-flight slot. A second start while the slot is held
// is rejected instead of replacing the first caller's completion.
type recorder struct {
	mu  sync.Mutex
	cur *recording
}

func (r *recorder) reserve(path string) (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return nil, ErrAlreadyRecording
	}
	r.cur = &recording{id: uuid.NewString(), path: path}
	return r.cur, nil
}

func (r *recorder) requestStop(done func(string, error)) (*recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil || r.cur.stopping {
		return nil, ErrNotRecording
	}
	r.cur.stopping = true
	r.cur.stopDone = done
	return r.cur, nil
}

// release frees the slot if rec still holds it and returns the pending stop
// completion, if any.
func (r *recorder) release(rec *recording) func(string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != rec {
		return nil
	}
	r.cur = nil
	return rec.stopDone
}

func (r *recorder) active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}
