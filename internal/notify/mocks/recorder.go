package mocks

import (
	"context"
	"sync"
)

// Recorder captures every message it is asked to send.
type Recorder struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every Notify return err after recording the message.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Notify(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return r.err
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
