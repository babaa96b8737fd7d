package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/apex/log"
)

const maxStderrBytes = 4096

// FFmpegOpener decodes videos by streaming MJPEG frames out of an ffmpeg subprocess.
// Empty paths resolve "ffmpeg" and "ffprobe" from PATH.
type FFmpegOpener struct {
	FFmpegPath  string
	FFprobePath string
}

func (o FFmpegOpener) ffmpeg() string {
	if o.FFmpegPath == "" {
		return "ffmpeg"
	}
	return o.FFmpegPath
}

func (o FFmpegOpener) ffprobe() string {
	if o.FFprobePath == "" {
		return "ffprobe"
	}
	return o.FFprobePath
}

// Open probes the container and starts decoding. Frames whose index is not a multiple of stride are
// dropped inside ffmpeg.
func (o FFmpegOpener) Open(ctx context.Context, path string, stride int) (FrameSource, error) {
	if stride < 1 {
		stride = 1
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	if err := o.probe(ctx, path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}

	args := []string{"-nostdin", "-v", "error", "-i", path}
	if stride > 1 {
		args = append(args, "-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, stride), "-vsync", "0")
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "pipe:1")

	cmd := exec.CommandContext(ctx, o.ffmpeg(), args...)
	stderr := &limitedBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start ffmpeg: %v", ErrVideoOpen, err)
	}

	log.Debugf("Started ffmpeg (pid %d) for %s with stride %d", cmd.Process.Pid, path, stride)

	return &ffmpegSource{
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		splitter: newJPEGSplitter(stdout),
		stride:   stride,
	}, nil
}

// probe checks that the container has at least one video stream
func (o FFmpegOpener) probe(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, o.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	if !strings.Contains(string(out), "video") {
		return errors.New("no video stream found")
	}
	return nil
}

type ffmpegSource struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *limitedBuffer
	splitter *jpegSplitter
	stride   int
	emitted  int

	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	data, err := s.splitter.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			if werr := s.wait(); werr != nil {
				return Frame{}, fmt.Errorf("ffmpeg exited: %v: %s", werr, strings.TrimSpace(s.stderr.String()))
			}
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("failed to read frame %d: %w", s.emitted*s.stride, err)
	}

	frame := Frame{Index: s.emitted * s.stride, Data: data}
	s.emitted++
	return frame, nil
}

// Close stops ffmpeg if it is still running and reaps it
func (s *ffmpegSource) Close() error {
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdout.Close()
	_ = s.wait()
	return nil
}

func (s *ffmpegSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// limitedBuffer keeps the first max bytes written to it
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
