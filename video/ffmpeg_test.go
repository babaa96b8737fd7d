package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x * 16), B: uint8(y * 32), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestJPEGSplitter(t *testing.T) {
	frames := [][]byte{encodeFrame(t, 10), encodeFrame(t, 120), encodeFrame(t, 250)}

	var stream bytes.Buffer
	stream.WriteString("junk before first frame")
	for _, f := range frames {
		stream.Write(f)
	}

	s := newJPEGSplitter(&stream)
	for i, want := range frames {
		got, err := s.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got, "frame %d", i)

		_, err = jpeg.Decode(bytes.NewReader(got))
		assert.NoError(t, err, "frame %d", i)
	}

	_, err := s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestJPEGSplitterTruncated(t *testing.T) {
	frame := encodeFrame(t, 42)

	s := newJPEGSplitter(bytes.NewReader(frame[:len(frame)/2]))
	_, err := s.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestJPEGSplitterEmpty(t *testing.T) {
	_, err := newJPEGSplitter(bytes.NewReader(nil)).Next()
	assert.Equal(t, io.EOF, err)
}

func TestFFmpegOpenerMissingFile(t *testing.T) {
	_, err := FFmpegOpener{}.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), 30)
	assert.True(t, errors.Is(err, ErrVideoOpen))
}

func TestFFmpegOpenerMissingProbe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a video"), 0o600))

	opener := FFmpegOpener{FFprobePath: filepath.Join(t.TempDir(), "no-ffprobe")}
	_, err := opener.Open(context.Background(), path, 30)
	assert.True(t, errors.Is(err, ErrVideoOpen))
}

func TestFFmpegOpenerDecodesFrames(t *testing.T) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	gen := exec.Command(ffmpegPath, "-v", "error", "-f", "lavfi", "-i", "testsrc=duration=2:size=64x48:rate=30",
		"-pix_fmt", "yuv420p", path)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("could not generate test clip: %v: %s", err, out)
	}

	src, err := FFmpegOpener{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}.Open(context.Background(), path, 15)
	require.NoError(t, err)
	defer src.Close()

	var indexes []int
	for {
		frame, err := src.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		indexes = append(indexes, frame.Index)

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(frame.Data))
		require.NoError(t, err)
		assert.Equal(t, 64, cfg.Width)
	}

	assert.Equal(t, []int{0, 15, 30, 45}, indexes)
}

func TestFFmpegOpenerRejectsNonVideo(t *testing.T) {
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a video container"), 0o600))

	_, err = FFmpegOpener{FFprobePath: ffprobePath}.Open(context.Background(), path, 30)
	assert.True(t, errors.Is(err, ErrVideoOpen))
}
