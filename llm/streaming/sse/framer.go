// Package sse implements the generic Server-Sent-Events framing rule
// shared by every provider client, so each adapter only has to turn one
// already-framed Event into zero or one unified chunk.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Event is one parsed SSE event block.
type Event struct {
	Event string // the `event:` field, empty if absent
	Data  string // joined `data:` lines, \n-separated
	ID    string // the `id:` field, empty if absent
	Retry string // the `retry:` field, empty if absent
}

// IsTerminal reports whether this event is the `[DONE]` sentinel or
// otherwise carries no payload worth emitting downstream.
func (e Event) IsTerminal() bool {
	return e.Data == "" || e.Data == "[DONE]"
}

// Framer turns a byte stream into a sequence of Events, one blank-line
// separated block at a time. It is pull-driven: Next reads from the
// underlying reader only until it has a complete block, and never
// buffers more than one event block ahead.
type Framer struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// NewFramer wraps r. r is typically an HTTP response body.
func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReaderSize(r, 4096)}
}

// Next reads and parses the next event block, blocking on the
// underlying reader as needed. It returns io.EOF once the stream ends
// with no further complete block pending.
func (f *Framer) Next() (Event, error) {
	for {
		if ev, ok := f.takeBlock(); ok {
			return ev, nil
		}
		line, err := f.r.ReadString('\n')
		if len(line) > 0 {
			f.buf.WriteString(line)
		}
		if err != nil {
			if err == io.EOF {
				if ev, ok := f.takeFinalBlock(); ok {
					return ev, nil
				}
			}
			return Event{}, err
		}
	}
}

// takeBlock extracts one complete \n\n or \r\n\r\n delimited block from
// the buffer, if present.
func (f *Framer) takeBlock() (Event, bool) {
	data := f.buf.Bytes()
	if idx := bytes.Index(data, []byte("\r\n\r\n")); idx >= 0 {
		block := string(data[:idx])
		rest := data[idx+4:]
		f.buf.Reset()
		f.buf.Write(rest)
		return parseBlock(block), true
	}
	if idx := bytes.Index(data, []byte("\n\n")); idx >= 0 {
		block := string(data[:idx])
		rest := data[idx+2:]
		f.buf.Reset()
		f.buf.Write(rest)
		return parseBlock(block), true
	}
	return Event{}, false
}

// takeFinalBlock handles a stream that ends without a trailing blank
// line after its last event.
func (f *Framer) takeFinalBlock() (Event, bool) {
	block := strings.TrimRight(f.buf.String(), "\r\n")
	f.buf.Reset()
	if block == "" {
		return Event{}, false
	}
	return parseBlock(block), true
}

func parseBlock(block string) Event {
	var ev Event
	var dataLines []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment line, ignored
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			ev.ID = value
		case "retry":
			ev.Retry = value
		}
	}
	ev.Data = strings.Join(dataLines, "\n")
	return ev
}
