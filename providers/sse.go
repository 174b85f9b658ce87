package providers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxSSELine = 1 << 20

// sseDecoder turns the payload of one "data: " line into a delta. ok is false
// when the event carried nothing worth forwarding.
type sseDecoder func(data []byte) (d Delta, ok bool, err error)

// sseStream reads an upstream server-sent event body line by line.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	decode  sseDecoder
	// finishEnds makes EOF after a finish reason a clean end of stream, for
	// upstreams that do not send [DONE].
	finishEnds bool
	finished   bool
	done       bool
}

func newSSEStream(body io.ReadCloser, decode sseDecoder, finishEnds bool) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &sseStream{body: body, scanner: scanner, decode: decode, finishEnds: finishEnds}
}

// Recv implements ChatStream. Lines that are not data events, and data events
// that fail to decode, are skipped.
func (s *sseStream) Recv() (Delta, error) {
	if s.done {
		return Delta{}, io.EOF
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if data == SSEDone {
			s.done = true
			return Delta{}, io.EOF
		}
		d, ok, err := s.decode([]byte(data))
		if err != nil || !ok {
			continue
		}
		if d.FinishReason != "" {
			s.finished = true
		}
		return d, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Delta{}, err
	}
	if s.finishEnds && s.finished {
		s.done = true
		return Delta{}, io.EOF
	}
	return Delta{}, io.ErrUnexpectedEOF
}

// Close implements ChatStream.
func (s *sseStream) Close() error {
	return s.body.Close()
}

// openSSE sends req and returns the response body when the upstream answered
// 200. Any other status is read and returned as a *StatusError.
func openSSE(ctx context.Context, client *http.Client, req *http.Request, provider string, errMessage func([]byte) string) (io.ReadCloser, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		msg := strings.TrimSpace(string(body))
		if errMessage != nil {
			if m := errMessage(body); m != "" {
				msg = m
			}
		}
		return nil, &StatusError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
	}
	return resp.Body, nil
}

// IsStatusError reports whether err wraps a *StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
