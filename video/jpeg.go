package video

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerTEM = 0x01
)

var errCorruptStream = errors.New("corrupt mjpeg stream")

// jpegSplitter cuts a concatenated MJPEG byte stream (ffmpeg image2pipe output) into single JPEG images.
// It walks marker segments instead of searching for EOI bytes, so table payloads cannot end a frame early.
type jpegSplitter struct {
	r       *bufio.Reader
	buf     bytes.Buffer
	pending byte
}

func newJPEGSplitter(r io.Reader) *jpegSplitter {
	return &jpegSplitter{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete JPEG. io.EOF means the stream ended cleanly between images.
func (s *jpegSplitter) Next() ([]byte, error) {
	if err := s.seekSOI(); err != nil {
		return nil, err
	}

	s.buf.Reset()
	s.buf.Write([]byte{0xFF, markerSOI})

	for {
		marker, err := s.readMarker()
		if err != nil {
			return nil, unexpected(err)
		}
		s.buf.Write([]byte{0xFF, marker})

		switch {
		case marker == markerEOI:
			out := make([]byte, s.buf.Len())
			copy(out, s.buf.Bytes())
			return out, nil

		case marker == markerTEM || (marker >= 0xD0 && marker <= 0xD7):
			// standalone markers carry no length
			continue
		}

		if err := s.copySegment(); err != nil {
			return nil, unexpected(err)
		}
		if marker == markerSOS {
			if err := s.copyEntropyData(); err != nil {
				return nil, unexpected(err)
			}
		}
	}
}

func (s *jpegSplitter) seekSOI() error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		next, err := s.r.ReadByte()
		if err != nil {
			return unexpected(err)
		}
		if next == markerSOI {
			return nil
		}
		if next == 0xFF {
			_ = s.r.UnreadByte()
		}
	}
}

func (s *jpegSplitter) readMarker() (byte, error) {
	if s.pending != 0 {
		m := s.pending
		s.pending = 0
		return m, nil
	}

	b, err := s.r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("%w: expected marker, got 0x%02x", errCorruptStream, b)
	}
	for {
		m, err := s.r.ReadByte()
		if err != nil {
			return 0, err
		}
		// fill bytes
		if m != 0xFF {
			return m, nil
		}
	}
}

func (s *jpegSplitter) copySegment() error {
	var lenBytes [2]byte
	if _, err := io.ReadFull(s.r, lenBytes[:]); err != nil {
		return err
	}
	length := int(lenBytes[0])<<8 | int(lenBytes[1])
	if length < 2 {
		return fmt.Errorf("%w: segment length %d", errCorruptStream, length)
	}
	s.buf.Write(lenBytes[:])
	_, err := io.CopyN(&s.buf, s.r, int64(length-2))
	return err
}

// copyEntropyData copies scan data up to the next real marker, which is left pending
func (s *jpegSplitter) copyEntropyData() error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			s.buf.WriteByte(b)
			continue
		}

		next, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		switch {
		case next == 0x00 || (next >= 0xD0 && next <= 0xD7):
			s.buf.WriteByte(b)
			s.buf.WriteByte(next)
		case next == 0xFF:
			_ = s.r.UnreadByte()
		default:
			s.pending = next
			return nil
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
