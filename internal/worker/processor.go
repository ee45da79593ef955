package worker

import (
	"context"
	"fmt"
	"time"
)

// Processor turns a prompt into response text. Implementations may be slow
// and must honour context cancellation.
type Processor interface {
	Process(ctx context.Context, prompt string) (string, error)
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc func(ctx context.Context, prompt string) (string, error)

// Process calls f(ctx, prompt)
func (f ProcessorFunc) Process(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// SimulatedProcessor stands in for a real inference backend
type SimulatedProcessor struct {
	Delay time.Duration
}

// Process waits for Delay and echoes the prompt back in a canned response
func (p *SimulatedProcessor) Process(ctx context.Context, prompt string) (string, error) {
	if p.Delay > 0 {
		timer := time.NewTimer(p.Delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", fmt.Errorf("inference canceled: %w", ctx.Err())
		}
	}

	return fmt.Sprintf("This is a simulated AI response to: '%s'", prompt), nil
}
