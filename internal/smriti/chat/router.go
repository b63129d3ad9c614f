package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/spec/recall"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/capture"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/matrix"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/transcript"
)

// Reply texts shared with tests.
const (
	HelpText = "Tell me something to keep: \"remember [happy] tea with Meena yesterday\".\n" +
		"Ask about the past: \"ask what did I do last Sunday?\" or any question ending in \"?\".\n" +
		"Browse: \"memories\" or \"memories walk\"."
	NoMemoriesText      = "No memories found."
	OfflineNoticeText   = "Memory service unreachable; saved on this device."
	SaveFailedText      = "I could not save that memory. Please try again."
	AskFailedText       = "I could not reach your memories right now. Please try again later."
	FromCacheNoticeText = "Memory service unreachable; showing memories saved on this device."
	NoVoiceText         = "Voice notes are not available right now. Please type the memory instead."
	EmptyVoiceText      = "I could not make out any words in that voice note."
)

// maxTimelineRecords caps a "memories" reply.
const maxTimelineRecords = 30

// Saver saves one memory. *capture.Coordinator satisfies it.
type Saver interface {
	AddMemory(ctx context.Context, text string, emotion memory.Emotion) (capture.Outcome, error)
}

// Asker answers questions about stored memories. *remote.Client satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (*recall.AskResponse, error)
}

// MediaFetcher downloads voice notes. *matrix.Client satisfies it.
type MediaFetcher interface {
	Download(ctx context.Context, uri string) ([]byte, error)
}

// Sender posts replies. *matrix.Client satisfies it.
type Sender interface {
	SendText(ctx context.Context, roomID, text string) error
	SendNotice(ctx context.Context, roomID, text string) error
}

// Reply is one message to post back.
type Reply struct {
	Text   string
	Notice bool
}

// Deps are the Router's collaborators. Saver is required; the rest disable
// their feature when nil.
type Deps struct {
	Saver       Saver
	Asker       Asker
	Remote      capture.RemoteReader
	Local       capture.LocalMirror
	Transcriber *transcript.BatchTranscriber
	Media       MediaFetcher
	Location    *time.Location
	Logger      *slog.Logger
}

// Router handles chat messages.
type Router struct {
	deps Deps
}

// NewRouter returns a Router over deps.
func NewRouter(deps Deps) *Router {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Router{deps: deps}
}

// Serve handles msg and posts the replies with s. It is shaped to be used as
// a matrix.Handler through a closure.
func (r *Router) Serve(ctx context.Context, s Sender, msg matrix.Message) {
	ctx, _ = trace.Ensure(ctx, trace.Request)
	logger := observability.WithTrace(ctx, r.deps.Logger).With("room", msg.RoomID, "event", msg.EventID)
	for _, reply := range r.Handle(ctx, msg) {
		send := s.SendText
		if reply.Notice {
			send = s.SendNotice
		}
		if err := send(ctx, msg.RoomID, reply.Text); err != nil {
			logger.Error("chat: send reply failed", "err", err)
		}
	}
}

// Handle works out the replies for msg.
func (r *Router) Handle(ctx context.Context, msg matrix.Message) []Reply {
	if msg.Kind == matrix.KindAudio {
		return r.voiceNote(ctx, msg)
	}

	cmd := Parse(msg.Body)
	switch cmd.Action {
	case ActionRemember:
		return r.remember(ctx, cmd.Text, cmd.Emotion)
	case ActionAsk:
		return r.ask(ctx, cmd.Text)
	case ActionMemories:
		return r.memories(ctx, cmd.Text)
	case ActionHelp:
		return []Reply{{Text: HelpText}}
	default:
		return nil
	}
}

func (r *Router) remember(ctx context.Context, text string, emotion memory.Emotion) []Reply {
	out, err := r.deps.Saver.AddMemory(ctx, text, emotion)
	if errors.Is(err, capture.ErrEmptyMemory) {
		return []Reply{{Text: HelpText}}
	}
	if err != nil {
		r.deps.Logger.Error("chat: save failed", "err", err)
		return []Reply{{Text: SaveFailedText}}
	}

	switch out.Kind {
	case capture.RecoverableFailure:
		return []Reply{{Text: SaveFailedText}}
	case capture.PersistedLocalOnly:
		return []Reply{{Text: savedText(out, r.deps.Location)}, {Text: OfflineNoticeText, Notice: true}}
	default:
		return []Reply{{Text: savedText(out, r.deps.Location)}}
	}
}

func savedText(out capture.Outcome, loc *time.Location) string {
	text := "Saved memory: " + out.Record.Text
	if out.DateResolved {
		text += "\n(" + out.Record.Timestamp.In(loc).Format("Monday, 2 January 2006") + ")"
	}
	return text
}

func (r *Router) ask(ctx context.Context, question string) []Reply {
	question = strings.TrimSpace(question)
	if question == "" {
		return []Reply{{Text: HelpText}}
	}
	if r.deps.Asker == nil {
		return []Reply{{Text: AskFailedText}}
	}
	resp, err := r.deps.Asker.Ask(ctx, question)
	if err != nil {
		observability.WithTrace(ctx, r.deps.Logger).Warn("chat: ask failed", "err", err)
		return []Reply{{Text: AskFailedText}}
	}
	if resp.Answer == nil || strings.TrimSpace(*resp.Answer) == "" {
		return []Reply{{Text: NoMemoriesText}}
	}
	return []Reply{{Text: strings.TrimSpace(*resp.Answer)}}
}

func (r *Router) memories(ctx context.Context, filter string) []Reply {
	tl, err := capture.LoadTimeline(ctx, r.deps.Remote, r.deps.Local)
	if err != nil {
		observability.WithTrace(ctx, r.deps.Logger).Warn("chat: load timeline failed", "err", err)
		return []Reply{{Text: AskFailedText}}
	}

	var replies []Reply
	if tl.FromCache {
		replies = append(replies, Reply{Text: FromCacheNoticeText, Notice: true})
	}
	groups := capture.GroupByDay(tl.Records, filter, r.deps.Location)
	if len(groups) == 0 {
		return append(replies, Reply{Text: NoMemoriesText})
	}
	return append(replies, Reply{Text: formatTimeline(groups, r.deps.Location, maxTimelineRecords)})
}

// formatTimeline renders day groups as plain text, stopping after limit
// records.
func formatTimeline(groups []capture.DayGroup, loc *time.Location, limit int) string {
	var b strings.Builder
	shown, total := 0, 0
	for _, g := range groups {
		total += len(g.Records)
	}
	for _, g := range groups {
		if shown >= limit {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(g.Label)
		b.WriteString("\n")
		for _, rec := range g.Records {
			if shown >= limit {
				break
			}
			fmt.Fprintf(&b, "  %s  %s", rec.Timestamp.In(loc).Format("15:04"), rec.Text)
			if rec.Emotion != memory.EmotionNone {
				fmt.Fprintf(&b, " (%s)", rec.Emotion)
			}
			b.WriteString("\n")
			shown++
		}
	}
	if total > shown {
		fmt.Fprintf(&b, "\n… and %d more.", total-shown)
	}
	return strings.TrimRight(b.String(), "\n")
}

// voiceNote transcribes a voice note through a one-shot recognition session
// and saves the transcript.
func (r *Router) voiceNote(ctx context.Context, msg matrix.Message) []Reply {
	logger := observability.WithTrace(ctx, r.deps.Logger)
	if r.deps.Media == nil || r.deps.Transcriber == nil || !r.deps.Transcriber.Configured() {
		return []Reply{{Text: NoVoiceText}}
	}

	audio, err := r.deps.Media.Download(ctx, msg.Audio.URI)
	if err != nil {
		logger.Warn("chat: download voice note failed", "err", err)
		return []Reply{{Text: NoVoiceText}}
	}

	rec := transcript.New(logger)
	src := &transcript.AudioRecognizer{
		Transcriber: r.deps.Transcriber,
		Audio:       audio,
		Filename:    msg.Audio.Filename,
		ContentType: msg.Audio.MimeType,
	}
	if err := transcript.Listen(ctx, rec, src, ""); err != nil {
		logger.Warn("chat: transcribe voice note failed", "err", err)
		return []Reply{{Text: NoVoiceText}}
	}

	text := strings.TrimSpace(rec.LiveText())
	if text == "" {
		return []Reply{{Text: EmptyVoiceText}}
	}
	return r.remember(ctx, text, memory.EmotionNone)
}
