package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// maxLineSize bounds a single line of operator input.
const maxLineSize = 1 << 20

type line struct {
	text string
	err  error
}

// LineReader reads operator input one line at a time. A single goroutine
// owns the underlying reader so a prompt abandoned on cancellation does not
// lose the line typed afterwards.
type LineReader struct {
	in  io.Reader
	out io.Writer

	start sync.Once
	stop  sync.Once
	lines chan line
	done  chan struct{}
}

// NewLineReader creates a reader that writes prompts to out and reads
// answers from in.
func NewLineReader(in io.Reader, out io.Writer) *LineReader {
	return &LineReader{
		in:    in,
		out:   out,
		lines: make(chan line),
		done:  make(chan struct{}),
	}
}

func (r *LineReader) pump() {
	defer close(r.lines)

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 4096), maxLineSize)
	for sc.Scan() {
		select {
		case r.lines <- line{text: sc.Text()}:
		case <-r.done:
			return
		}
	}
	if err := sc.Err(); err != nil {
		select {
		case r.lines <- line{err: err}:
		case <-r.done:
		}
	}
}

// Prompt writes prompt and waits for the next line. It returns ctx.Err()
// once ctx is cancelled and io.EOF when input is exhausted.
func (r *LineReader) Prompt(ctx context.Context, prompt string) (string, error) {
	r.start.Do(func() { go r.pump() })

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprint(r.out, prompt); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	}
}

// Close stops the reading goroutine once it next delivers a line.
func (r *LineReader) Close() {
	r.stop.Do(func() { close(r.done) })
}
