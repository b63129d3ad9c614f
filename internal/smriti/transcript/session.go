package transcript

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/HrishitaRaj/smriti-ai/common/spec/speech"
)

// Recognizer is the speech platform port. Available is checked once before a
// session starts; Recognize delivers events through emit until the stream
// ends, ctx is cancelled, or recognition fails.
type Recognizer interface {
	Available(ctx context.Context) error
	Recognize(ctx context.Context, emit func(speech.Result)) error
}

// Apply feeds one recognition event into the reconciler.
func (r *Reconciler) Apply(res speech.Result) error {
	return r.OnEvent(res.Finals, res.InterimText())
}

// Listen runs one recognition session against src, seeding the buffer with
// current. If the recogniser is unavailable the error wraps
// ErrRecognitionUnavailable and rec stays in its prior state. Otherwise the
// session ends with Stop when the stream completes, OnError when recognition
// fails, and Cancel when ctx is cancelled.
func Listen(ctx context.Context, rec *Reconciler, src Recognizer, current string) error {
	if src == nil {
		return ErrRecognitionUnavailable
	}
	if err := src.Available(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRecognitionUnavailable, err)
	}
	if err := rec.Start(current); err != nil {
		return err
	}

	err := src.Recognize(ctx, func(res speech.Result) {
		if applyErr := rec.Apply(res); applyErr != nil && !errors.Is(applyErr, ErrNotListening) {
			rec.logger.Warn("transcript: dropped event", "err", applyErr)
		}
	})

	switch {
	case ctx.Err() != nil:
		rec.Cancel()
		return ctx.Err()
	case err != nil:
		rec.OnError(err)
		return fmt.Errorf("transcript: recognise: %w", err)
	default:
		rec.Stop()
		return nil
	}
}

// LineRecognizer replays newline-delimited JSON speech.Result events from a
// reader, e.g. a recogniser process piping its output.
type LineRecognizer struct {
	R io.Reader
}

// Available reports an error when there is nothing to read from.
func (l *LineRecognizer) Available(_ context.Context) error {
	if l == nil || l.R == nil {
		return fmt.Errorf("no event source")
	}
	return nil
}

// Recognize emits one event per non-blank line. A malformed line ends the
// session with an error.
func (l *LineRecognizer) Recognize(ctx context.Context, emit func(speech.Result)) error {
	sc := bufio.NewScanner(l.R)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		res, err := speech.ParseResult([]byte(raw))
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		emit(*res)
	}
	return sc.Err()
}
