package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// ConsoleDeliverer writes responses to a terminal. It backs the CLI surface
// and serves as the default platform.
type ConsoleDeliverer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsoleDeliverer(out io.Writer) *ConsoleDeliverer {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleDeliverer{out: out}
}

func (c *ConsoleDeliverer) Platform() string {
	return "console"
}

func (c *ConsoleDeliverer) Send(ctx context.Context, target Target, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintln(c.out, msg.Text); err != nil {
		return fmt.Errorf("console write: %w", err)
	}

	if msg.Debug != "" {
		if _, err := fmt.Fprintf(c.out, "\n--- debug ---\n%s\n", msg.Debug); err != nil {
			return fmt.Errorf("console write: %w", err)
		}
	}

	return nil
}
