package stream

import (
	"encoding/json"
	"io"
	"net/http"
)

// ContentType is the media type of a frame stream.
const ContentType = "application/x-ndjson"

// Writer encodes frames as newline-delimited JSON, flushing after each frame
// when the underlying writer supports it.
type Writer struct {
	enc     *json.Encoder
	flusher http.Flusher
}

// NewWriter wraps w. If w is an http.Flusher every frame is flushed.
func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	fw := &Writer{enc: enc}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Emit writes one frame. It satisfies Emitter.
func (w *Writer) Emit(f Frame) error {
	if err := w.enc.Encode(f); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Collect returns an Emitter that appends to frames. Useful for callers that
// need the whole sequence, such as tests and the CLI.
func Collect(frames *[]Frame) Emitter {
	return func(f Frame) error {
		*frames = append(*frames, f)
		return nil
	}
}
