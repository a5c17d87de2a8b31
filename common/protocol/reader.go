package protocol

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyLine is returned by Decode for blank input.
var ErrEmptyLine = errors.New("empty message line")

// Decode parses one JSON protocol message.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptyLine
	}
	var msg Message
	if err := jsonAPI.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode protocol message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("protocol message has no type")
	}
	return &msg, nil
}

// Encode serialises a message back to a single JSON line (without newline).
func Encode(msg *Message) ([]byte, error) {
	return jsonAPI.Marshal(msg)
}

// MessageReader yields decoded messages until io.EOF.
type MessageReader interface {
	Next() (*Message, error)
}

// LineReader decodes JSON-lines connector output. Lines that are not valid
// protocol messages are skipped and counted, the way connector stdout mixes in
// plain log lines.
type LineReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	skipped int64
	line    int64
}

const maxLineSize = 64 * 1024 * 1024

// NewLineReader wraps r, transparently un-gzipping it when it starts with the
// gzip magic bytes.
func NewLineReader(r io.Reader) (*LineReader, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	var closer io.Closer
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		src = gz
		closer = gz
	}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineReader{scanner: scanner, closer: closer}, nil
}

// Next returns the next protocol message or io.EOF.
func (lr *LineReader) Next() (*Message, error) {
	for lr.scanner.Scan() {
		lr.line++
		msg, err := Decode(lr.scanner.Bytes())
		if err != nil {
			lr.skipped++
			continue
		}
		return msg, nil
	}
	if err := lr.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read failed at line %d: %w", lr.line, err)
	}
	return nil, io.EOF
}

// Skipped reports how many non-message lines were ignored.
func (lr *LineReader) Skipped() int64 {
	return lr.skipped
}

// Close releases the gzip reader, if any.
func (lr *LineReader) Close() error {
	if lr.closer != nil {
		return lr.closer.Close()
	}
	return nil
}

// SliceReader replays an in-memory list of messages. Useful for tests and
// for callers that already decoded the stream.
type SliceReader struct {
	messages []*Message
	pos      int
}

// NewSliceReader returns a reader over msgs.
func NewSliceReader(msgs ...*Message) *SliceReader {
	return &SliceReader{messages: msgs}
}

// Next returns the next message or io.EOF.
func (sr *SliceReader) Next() (*Message, error) {
	if sr.pos >= len(sr.messages) {
		return nil, io.EOF
	}
	msg := sr.messages[sr.pos]
	sr.pos++
	return msg, nil
}
