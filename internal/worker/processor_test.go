package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedProcessor(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{name: "simple prompt", prompt: "hello", want: "This is a simulated AI response to: 'hello'"},
		{name: "empty prompt", prompt: "", want: "This is a simulated AI response to: ''"},
		{name: "placeholder", prompt: "a prompt was not provided", want: "This is a simulated AI response to: 'a prompt was not provided'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &SimulatedProcessor{Delay: time.Millisecond}
			got, err := p.Process(context.Background(), tt.prompt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimulatedProcessor_Canceled(t *testing.T) {
	p := &SimulatedProcessor{Delay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	got, err := p.Process(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestProcessorFunc(t *testing.T) {
	var p Processor = ProcessorFunc(func(_ context.Context, prompt string) (string, error) {
		return prompt + "!", nil
	})

	got, err := p.Process(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi!", got)
}
