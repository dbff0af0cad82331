package streaming

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSniffer struct {
	lines []string
	done  bool
}

func (f *fakeSniffer) Feed(chunk []byte) { f.lines = append(f.lines, string(chunk)) }
func (f *fakeSniffer) Close()            { f.done = true }

func TestPump_CopiesBytesAndTees(t *testing.T) {
	rec := httptest.NewRecorder()
	upstream := strings.NewReader("data: one\n\ndata: two\n\n")
	sniffer := &fakeSniffer{}

	stats := &Stats{}
	err := Pump(context.Background(), rec, upstream, sniffer, stats)
	require.NoError(t, err)
	assert.Equal(t, "data: one\n\ndata: two\n\n", rec.Body.String())
	assert.True(t, sniffer.done)
	assert.NotEmpty(t, sniffer.lines)
	assert.EqualValues(t, len("data: one\n\ndata: two\n\n"), stats.BytesForwarded.Load())
	assert.True(t, stats.ChunksForwarded.Load() > 0)
}

func TestPump_NilStatsIsOptional(t *testing.T) {
	rec := httptest.NewRecorder()
	upstream := strings.NewReader("hello")
	err := Pump(context.Background(), rec, upstream, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Body.String())
}

func TestLineSniffer_ReassemblesLines(t *testing.T) {
	var got []string
	closed := false
	s := NewLineSniffer(func(line []byte) { got = append(got, string(line)) }, func() { closed = true })

	s.Feed([]byte("data: a\nda"))
	s.Feed([]byte("ta: b\n"))
	s.Close()

	require.Len(t, got, 2)
	assert.Equal(t, "data: a", got[0])
	assert.Equal(t, "data: b", got[1])
	assert.True(t, closed)
}
