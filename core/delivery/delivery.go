package delivery

import (
	"context"
	"fmt"
	"sync"
)

// Target is the opaque address a response is delivered to: a platform name
// and a platform-specific destination (chat id, channel, terminal).
type Target struct {
	Platform    string `json:"platform"`
	Destination string `json:"destination"`
}

// Message is a finished response. Debug carries the rendered routing trace
// when the caller requested one; deliverers that cannot show it may drop it.
type Message struct {
	Text  string
	Debug string
}

// Deliverer sends a message to one platform.
type Deliverer interface {
	Platform() string
	Send(ctx context.Context, target Target, msg Message) error
}

// Registry resolves deliverers by platform name.
type Registry struct {
	mu         sync.RWMutex
	deliverers map[string]Deliverer
}

func NewRegistry() *Registry {
	return &Registry{
		deliverers: make(map[string]Deliverer),
	}
}

func (r *Registry) Register(d Deliverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverers[d.Platform()] = d
}

func (r *Registry) Get(platform string) (Deliverer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deliverers[platform]
	if !ok {
		return nil, fmt.Errorf("no deliverer for platform %q", platform)
	}
	return d, nil
}

// Send resolves the target's platform and delivers the message.
func (r *Registry) Send(ctx context.Context, target Target, msg Message) error {
	d, err := r.Get(target.Platform)
	if err != nil {
		return err
	}
	return d.Send(ctx, target, msg)
}

func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]string, 0, len(r.deliverers))
	for p := range r.deliverers {
		platforms = append(platforms, p)
	}
	return platforms
}
