// Package stream relays upstream completions to clients as newline-delimited
// JSON frames. A Relay drives one chat turn through an explicit state machine
// that retries transient upstream failures by restarting the generation.
//
// A frame stream looks like:
//
//	{"type":"typing","status":"start"}
//	{"type":"typing","status":"stop"}          once, even across retries
//	{"type":"chunk","content":"…","chunk_id":1}
//	{"type":"usage","usage":{…}}               when the upstream reports it
//	{"type":"done","full_content":"…","metadata":{…}}
//
// or ends with {"type":"error","code":"…","error":"…"} instead of done.
//
// Chunks already sent by an attempt that later fails transiently are not
// retracted. The retry starts over at chunk_id 1, so a client that sees
// chunk_id 1 again must discard the text it has buffered. full_content in
// the done frame holds only the successful attempt.
package stream

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
	"unicode/utf8"

	"github.com/ferro-labs/assistme/providers"
)

// Type tags a Frame.
type Type string

// Frame types, in the order a successful stream emits them.
const (
	TypeTyping Type = "typing"
	TypeChunk  Type = "chunk"
	TypeUsage  Type = "usage"
	TypeDone   Type = "done"
	TypeError  Type = "error"
)

// Typing indicator statuses.
const (
	TypingStart = "start"
	TypingStop  = "stop"
)

// Error frame codes.
const (
	CodeUpstream      = "upstream_error"
	CodeStreamFailed  = "stream_failed"
	CodeInternal      = "internal_error"
	CodeNotConfigured = "not_configured"
)

// Frame is one element of the wire vocabulary. Only the fields relevant to
// Type are serialized.
type Frame struct {
	Type Type

	// typing
	Status string

	// chunk
	Content string
	ChunkID int

	// usage
	Usage *providers.Usage

	// done
	FullContent string
	Metadata    *DoneMetadata

	// error
	Code    string
	Message string
}

// DoneMetadata summarizes a finished generation.
type DoneMetadata struct {
	CharCount      int     `json:"char_count"`
	TokensEstimate int     `json:"tokens_estimate"`
	ElapsedMS      int64   `json:"elapsed_ms"`
	TokensPerSec   float64 `json:"tokens_per_sec"`
	Chunks         int     `json:"chunks"`
	Attempts       int     `json:"attempts"`
	Source         string  `json:"source"`
	Model          string  `json:"model"`
}

// NewDoneMetadata derives the done metrics for text streamed in chunks over
// elapsed. Tokens are estimated at four characters per token.
func NewDoneMetadata(text string, chunks int, elapsed time.Duration) *DoneMetadata {
	chars := utf8.RuneCountInString(text)
	tokens := chars / 4
	var perSec float64
	if secs := elapsed.Seconds(); secs > 0 {
		perSec = math.Round(float64(tokens)/secs*100) / 100
	}
	return &DoneMetadata{
		CharCount:      chars,
		TokensEstimate: tokens,
		ElapsedMS:      elapsed.Milliseconds(),
		TokensPerSec:   perSec,
		Chunks:         chunks,
	}
}

// Typing returns a typing indicator frame.
func Typing(status string) Frame { return Frame{Type: TypeTyping, Status: status} }

// Chunk returns a text chunk frame.
func Chunk(content string, id int) Frame { return Frame{Type: TypeChunk, Content: content, ChunkID: id} }

// UsageFrame returns a token usage frame.
func UsageFrame(u *providers.Usage) Frame { return Frame{Type: TypeUsage, Usage: u} }

// Done returns the terminal success frame.
func Done(full string, meta *DoneMetadata) Frame {
	return Frame{Type: TypeDone, FullContent: full, Metadata: meta}
}

// Error returns the terminal failure frame.
func Error(code, message string) Frame { return Frame{Type: TypeError, Code: code, Message: message} }

// MarshalJSON implements json.Marshaler. Answer text is emitted verbatim:
// <, > and & are not escaped.
func (f Frame) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f.wire()); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// wire returns the on-the-wire shape for f.Type.
func (f Frame) wire() any {
	switch f.Type {
	case TypeTyping:
		return struct {
			Type   Type   `json:"type"`
			Status string `json:"status"`
		}{f.Type, f.Status}
	case TypeChunk:
		return struct {
			Type    Type   `json:"type"`
			Content string `json:"content"`
			ChunkID int    `json:"chunk_id"`
		}{f.Type, f.Content, f.ChunkID}
	case TypeUsage:
		return struct {
			Type  Type             `json:"type"`
			Usage *providers.Usage `json:"usage"`
		}{f.Type, f.Usage}
	case TypeDone:
		return struct {
			Type        Type          `json:"type"`
			FullContent string        `json:"full_content"`
			Metadata    *DoneMetadata `json:"metadata"`
		}{f.Type, f.FullContent, f.Metadata}
	default:
		return struct {
			Type  Type   `json:"type"`
			Code  string `json:"code"`
			Error string `json:"error"`
		}{TypeError, f.Code, f.Message}
	}
}

// UnmarshalJSON implements json.Unmarshaler so clients written in Go (the CLI
// and tests) can read frames back.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type        Type             `json:"type"`
		Status      string           `json:"status"`
		Content     string           `json:"content"`
		ChunkID     int              `json:"chunk_id"`
		Usage       *providers.Usage `json:"usage"`
		FullContent string           `json:"full_content"`
		Metadata    *DoneMetadata    `json:"metadata"`
		Code        string           `json:"code"`
		Error       string           `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Frame{
		Type:        raw.Type,
		Status:      raw.Status,
		Content:     raw.Content,
		ChunkID:     raw.ChunkID,
		Usage:       raw.Usage,
		FullContent: raw.FullContent,
		Metadata:    raw.Metadata,
		Code:        raw.Code,
		Message:     raw.Error,
	}
	return nil
}
