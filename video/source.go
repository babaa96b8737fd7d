package video

import (
	"context"
	"errors"
)

var (
	// ErrVideoOpen means the container could not be opened or holds no video stream
	ErrVideoOpen = errors.New("could not open video file")
	// ErrInvalidSampleRate is returned for a sample rate below 1
	ErrInvalidSampleRate = errors.New("sample rate must be a positive integer")
)

// Frame is a single decoded frame, encoded as an image the vision tier can read.
// Index is the frame's position in the original stream, starting at 0.
type Frame struct {
	Index int
	Data  []byte
}

// FrameSource yields frames in stream order. Next returns io.EOF after the last frame.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Opener opens a video for sequential reading. stride is a hint: a source may skip frames whose
// index is not a multiple of stride, but must report original indexes for the frames it returns.
type Opener interface {
	Open(ctx context.Context, path string, stride int) (FrameSource, error)
}
