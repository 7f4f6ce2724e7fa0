package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Writer sends JSON payloads as server-sent event frames of the form
// "data: <json>\n\n", flushing after each frame. It is safe for concurrent
// use. After the first write error every Send fails with that error.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
	frames  int
}

// NewWriter wraps w. It fails when w does not implement http.Flusher.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Prepare writes the event-stream headers and the 200 status line.
func (s *Writer) Prepare() {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// Send encodes v as one frame.
func (s *Writer) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.err = fmt.Errorf("write frame: %w", err)
		return s.err
	}
	s.flusher.Flush()
	s.frames++
	return nil
}

// Frames returns the number of frames written.
func (s *Writer) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Err returns the first write error, if any.
func (s *Writer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// maxFrameSize bounds a single data line.
const maxFrameSize = 4 << 20

// Reader parses server-sent event frames. Consecutive data lines of one event
// are joined with newlines. Event names, ids, retry hints and comments are
// ignored.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader reads frames from r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Reader{scanner: scanner}
}

// Next returns the payload of the next frame. It returns io.EOF when the
// stream ends; a trailing frame without a terminating blank line is still
// delivered.
func (r *Reader) Next() (json.RawMessage, error) {
	var data bytes.Buffer
	hasData := false

	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")
		if line == "" {
			if hasData {
				return json.RawMessage(data.Bytes()), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(value)
		hasData = true
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if hasData {
		return json.RawMessage(data.Bytes()), nil
	}
	return nil, io.EOF
}
