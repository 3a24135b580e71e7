package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single newline-delimited message (1MB).
// Batch fetches of many files produce large responses; requests stay
// small, so the same bound serves both directions.
const MaxMessageSize = 1024 * 1024

// errMalformed marks input that scanned as a line but did not decode
// as JSON-RPC. The loop answers these with a ParseError response
// instead of dying.
type errMalformed struct {
	cause error
}

func (e *errMalformed) Error() string {
	return fmt.Sprintf("malformed message: %v", e.cause)
}

// readMessage reads one newline-delimited JSON-RPC message from stdin.
func (s *Server) readMessage() (*Message, error) {
	// Scanner is created lazily so SetStdin can swap streams in tests.
	if s.scanner == nil {
		s.scanner = bufio.NewScanner(s.stdin)
		s.scanner.Buffer(make([]byte, MaxMessageSize), MaxMessageSize)
	}

	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading from stdin: %w", err)
		}
		return nil, io.EOF
	}

	line := s.scanner.Text()
	s.logger.Debug("received message", map[string]interface{}{
		"raw": line,
	})

	var msg Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil, &errMalformed{cause: err}
	}

	return &msg, nil
}

// writeMessage writes one JSON-RPC message to stdout, newline-terminated.
func (s *Server) writeMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	s.logger.Debug("sending message", map[string]interface{}{
		"raw": string(data),
	})

	if _, err := fmt.Fprintf(s.stdout, "%s\n", data); err != nil {
		return fmt.Errorf("writing to stdout: %w", err)
	}

	return nil
}
