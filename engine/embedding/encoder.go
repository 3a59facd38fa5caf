// Package embedding turns catalog records and queries into unit vectors.
package embedding

import "context"

// Encoder maps text to a fixed-width vector. Implementations must be
// deterministic for identical input within a process.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EncoderFunc) Encode(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }
