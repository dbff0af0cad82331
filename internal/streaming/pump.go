// Package streaming implements the SSE framing and back-pressured byte
// relay between an upstream provider socket and the client (spec §4.G).
package streaming

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/atomic"

	"github.com/llmgate/gateway/internal/metrics"
)

// Stats holds the lock-free counters Pump updates as it copies bytes, so a
// caller can read them from another goroutine (e.g. a request-scoped
// logger flushing a summary line after the handler returns) without racing
// the copy loop.
type Stats struct {
	BytesForwarded atomic.Int64
	ChunksForwarded atomic.Int64
}

// Headers sets the response headers exactly once, before any body bytes
// (spec §4.G point 1). canonicalized selects between the SSE content type
// (true) and the legacy text/plain type (false); both the adapter and the
// passthrough path pass false for Anthropic-format clients and true for
// every other client format.
func Headers(w http.ResponseWriter, canonicalized bool) {
	if canonicalized {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain")
	}
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// Sniffer receives every chunk the pump forwards to the client, in the
// same order, for best-effort usage extraction (spec §4.F "usage
// sniffer"). It must not block: Pump schedules delivery to it after the
// client write is already enqueued, and drops a chunk rather than stall
// the forward path if the sniffer's buffer is full.
type Sniffer interface {
	Feed(chunk []byte)
	// Close signals no more chunks are coming; the sniffer flushes
	// whatever terminal usage event it accumulated.
	Close()
}

// tapBufferSize bounds how many chunks can be queued for the analyzer
// before Pump starts dropping them. This is the one bounded queue in the
// pipeline (spec §5: "No unbounded queues exist anywhere in the
// pipeline") — it exists solely to decouple analyzer latency from the
// client write path, never to buffer client backpressure.
const tapBufferSize = 64

// tee wraps a Sniffer with a bounded async delivery queue.
type tee struct {
	ch   chan []byte
	done chan struct{}
}

func newTee(s Sniffer) *tee {
	t := &tee{ch: make(chan []byte, tapBufferSize), done: make(chan struct{})}
	go func() {
		defer close(t.done)
		for chunk := range t.ch {
			s.Feed(chunk)
		}
		s.Close()
	}()
	return t
}

func (t *tee) feed(chunk []byte) {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	select {
	case t.ch <- cp:
	default:
		// Analyzer fell behind; drop this chunk rather than block the
		// client forward path (spec §4.G point 3).
		metrics.RecordSnifferDrop("tee")
	}
}

// close ends delivery and waits until the sniffer has drained the queue
// and run its own Close, so its terminal usage is published by the time
// Pump returns.
func (t *tee) close() {
	close(t.ch)
	<-t.done
}

// Pump copies bytes from upstream to w until upstream signals EOF or
// either socket errors (spec §4.G point 2), optionally teeing every chunk
// to sniffer. The forward path holds one upstream chunk at a time (spec
// §5 "Back-pressure"); the sniffer tee separately queues up to
// tapBufferSize copies of already-written chunks.
//
// On a write error to the client the function returns immediately without
// attempting to send a JSON error body — headers are already sent by the
// time Pump is called, so the client's best signal is the closed
// connection (spec §4.G point 2).
func Pump(ctx context.Context, w http.ResponseWriter, upstream io.Reader, sniffer Sniffer, stats *Stats) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}

	var t *tee
	if sniffer != nil {
		t = newTee(sniffer)
		defer t.close()
	}

	metrics.StreamOpened()
	defer metrics.StreamClosed()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := upstream.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, writeErr := w.Write(chunk); writeErr != nil {
				return writeErr
			}
			flusher.Flush()
			if t != nil {
				t.feed(chunk)
			}
			if stats != nil {
				stats.BytesForwarded.Add(int64(n))
				stats.ChunksForwarded.Inc()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// LineSniffer adapts a line-oriented usage extractor (most provider SSE
// formats are newline-delimited JSON events) to the Sniffer interface,
// reassembling a byte stream into lines before invoking onLine.
type LineSniffer struct {
	buf    []byte
	onLine func(line []byte)
	onDone func()
}

func NewLineSniffer(onLine func(line []byte), onDone func()) *LineSniffer {
	return &LineSniffer{onLine: onLine, onDone: onDone}
}

func (s *LineSniffer) Feed(chunk []byte) {
	s.buf = append(s.buf, chunk...)
	for {
		i := indexByte(s.buf, '\n')
		if i < 0 {
			return
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]
		s.onLine(line)
	}
}

func (s *LineSniffer) Close() {
	if len(s.buf) > 0 {
		s.onLine(s.buf)
	}
	if s.onDone != nil {
		s.onDone()
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// NewLineReader wraps r with buffering sized for typical SSE event lines,
// used by callers that need to read provider bytes line-by-line rather
// than through Pump (e.g. the adapter-path stream renderer).
func NewLineReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 8192)
}
