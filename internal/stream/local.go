package stream

import (
	"context"
	"time"
)

// Local synthesis defaults.
const (
	DefaultSliceSize  = 24
	DefaultSliceDelay = 15 * time.Millisecond
)

// Synthesizer replays a locally produced answer with the same frame sequence
// a relayed upstream stream has: typing start, typing stop, fixed-size text
// slices, done.
type Synthesizer struct {
	SliceSize int
	// Delay paces slices to mimic typing. Zero disables pacing.
	Delay  time.Duration
	Source string
	Model  string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSynthesizer returns a Synthesizer with the default slice size and pacing.
func NewSynthesizer(source, model string) *Synthesizer {
	return &Synthesizer{
		SliceSize: DefaultSliceSize,
		Delay:     DefaultSliceDelay,
		Source:    source,
		Model:     model,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Run emits text as a complete stream. The returned error is non-nil only
// when ctx was cancelled or emit failed.
func (s *Synthesizer) Run(ctx context.Context, text string, emit Emitter) (*Result, error) {
	res := &Result{State: StateTypingStarted, Attempts: 1}
	if err := emit(Typing(TypingStart)); err != nil {
		return res, err
	}
	start := s.now()
	if err := s.pause(ctx); err != nil {
		return res, err
	}
	if err := emit(Typing(TypingStop)); err != nil {
		return res, err
	}
	res.State = StateStreamingChunks

	slices := Slices(text, s.SliceSize)
	for i, part := range slices {
		if err := emit(Chunk(part, i+1)); err != nil {
			return res, err
		}
		if i < len(slices)-1 {
			if err := s.pause(ctx); err != nil {
				return res, err
			}
		}
	}

	meta := NewDoneMetadata(text, len(slices), s.now().Sub(start))
	meta.Attempts = 1
	meta.Source = s.Source
	meta.Model = s.Model
	res.State = StateDone
	res.FullContent = text
	res.Metadata = meta
	return res, emit(Done(text, meta))
}

func (s *Synthesizer) pause(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	return s.sleep(ctx, s.Delay)
}

// Slices splits text into runs of at most size runes. Multi-byte characters
// are never split.
func Slices(text string, size int) []string {
	if size <= 0 {
		size = DefaultSliceSize
	}
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
