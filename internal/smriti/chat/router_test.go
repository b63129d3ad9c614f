package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/spec/recall"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/capture"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/matrix"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/transcript"
)

// --- fakes ---

type fakeSaver struct {
	kind     capture.OutcomeKind
	resolved bool
	err      error
	texts    []string
	emotions []memory.Emotion
}

func (f *fakeSaver) AddMemory(_ context.Context, text string, emotion memory.Emotion) (capture.Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return capture.Outcome{}, capture.ErrEmptyMemory
	}
	if f.err != nil {
		return capture.Outcome{}, f.err
	}
	f.texts = append(f.texts, text)
	f.emotions = append(f.emotions, emotion)
	return capture.Outcome{
		Kind:         f.kind,
		Record:       memory.Record{Text: text, Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Emotion: emotion},
		DateResolved: f.resolved,
	}, nil
}

type fakeAsker struct {
	answer *string
	err    error
	got    string
}

func (f *fakeAsker) Ask(_ context.Context, q string) (*recall.AskResponse, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return &recall.AskResponse{Answer: f.answer}, nil
}

type fakeReader struct {
	recs []memory.Record
	err  error
}

func (f fakeReader) ListMemories(context.Context) ([]memory.Record, error) { return f.recs, f.err }

type fakeMirror struct{ recs []memory.Record }

func (f *fakeMirror) Entries(context.Context) ([]memory.Record, error) { return f.recs, nil }
func (f *fakeMirror) Merge(_ context.Context, recs []memory.Record) ([]memory.Record, error) {
	f.recs = memory.Merge(recs, f.recs)
	return f.recs, nil
}

type fakeMedia struct {
	data []byte
	err  error
}

func (f fakeMedia) Download(context.Context, string) ([]byte, error) { return f.data, f.err }

type sent struct {
	room, text string
	notice     bool
}

type fakeSender struct{ sent []sent }

func (f *fakeSender) SendText(_ context.Context, room, text string) error {
	f.sent = append(f.sent, sent{room, text, false})
	return nil
}

func (f *fakeSender) SendNotice(_ context.Context, room, text string) error {
	f.sent = append(f.sent, sent{room, text, true})
	return nil
}

func text(body string) matrix.Message {
	return matrix.Message{RoomID: "!r:x", EventID: "$e", Sender: "@asha:x", Kind: matrix.KindText, Body: body}
}

func strPtr(s string) *string { return &s }

// --- remember ---

func TestHandle_Remember(t *testing.T) {
	saver := &fakeSaver{kind: capture.PersistedRemoteAndLocal, resolved: true}
	r := NewRouter(Deps{Saver: saver, Location: time.UTC})

	replies := r.Handle(context.Background(), text("remember [calm] temple visit on 1 March 2024"))
	if len(replies) != 1 {
		t.Fatalf("replies = %+v", replies)
	}
	want := "Saved memory: temple visit on 1 March 2024\n(Friday, 1 March 2024)"
	if replies[0].Text != want {
		t.Errorf("reply = %q, want %q", replies[0].Text, want)
	}
	if saver.emotions[0] != memory.EmotionCalm {
		t.Errorf("emotion = %q", saver.emotions[0])
	}
}

func TestHandle_RememberOffline(t *testing.T) {
	r := NewRouter(Deps{Saver: &fakeSaver{kind: capture.PersistedLocalOnly}})
	replies := r.Handle(context.Background(), text("save tea with Meena"))
	if len(replies) != 2 || replies[0].Text != "Saved memory: tea with Meena" {
		t.Fatalf("replies = %+v", replies)
	}
	if !replies[1].Notice || replies[1].Text != OfflineNoticeText {
		t.Errorf("notice = %+v", replies[1])
	}
}

func TestHandle_RememberFailures(t *testing.T) {
	cases := map[string]*fakeSaver{
		"both stores failed": {kind: capture.RecoverableFailure},
		"saver error":        {err: errors.New("boom")},
	}
	for name, saver := range cases {
		t.Run(name, func(t *testing.T) {
			replies := NewRouter(Deps{Saver: saver}).Handle(context.Background(), text("remember x"))
			if len(replies) != 1 || replies[0].Text != SaveFailedText {
				t.Errorf("replies = %+v", replies)
			}
		})
	}
}

func TestHandle_RememberEmptyShowsHelp(t *testing.T) {
	replies := NewRouter(Deps{Saver: &fakeSaver{}}).Handle(context.Background(), text("remember   "))
	if len(replies) != 1 || replies[0].Text != HelpText {
		t.Errorf("replies = %+v", replies)
	}
}

// --- ask ---

func TestHandle_Ask(t *testing.T) {
	asker := &fakeAsker{answer: strPtr("  You had tea with Meena.  ")}
	r := NewRouter(Deps{Saver: &fakeSaver{}, Asker: asker})

	replies := r.Handle(context.Background(), text("Who did I meet on Friday?"))
	if len(replies) != 1 || replies[0].Text != "You had tea with Meena." {
		t.Errorf("replies = %+v", replies)
	}
	if asker.got != "Who did I meet on Friday?" {
		t.Errorf("question = %q", asker.got)
	}
}

func TestHandle_AskNoMemoriesAndErrors(t *testing.T) {
	tests := []struct {
		name  string
		asker Asker
		want  string
	}{
		{"null answer", &fakeAsker{}, NoMemoriesText},
		{"blank answer", &fakeAsker{answer: strPtr(" ")}, NoMemoriesText},
		{"service down", &fakeAsker{err: errors.New("connection refused")}, AskFailedText},
		{"no asker", nil, AskFailedText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(Deps{Saver: &fakeSaver{}, Asker: tt.asker})
			replies := r.Handle(context.Background(), text("ask what happened?"))
			if len(replies) != 1 || replies[0].Text != tt.want {
				t.Errorf("replies = %+v", replies)
			}
		})
	}
}

// --- memories ---

func TestHandle_Memories(t *testing.T) {
	recs := []memory.Record{
		{ID: "1", Text: "Morning walk", Timestamp: time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)},
		{ID: "2", Text: "Tea with Meena", Timestamp: time.Date(2024, 3, 2, 16, 30, 0, 0, time.UTC), Emotion: memory.EmotionHappy},
	}
	local := &fakeMirror{}
	r := NewRouter(Deps{Saver: &fakeSaver{}, Remote: fakeReader{recs: recs}, Local: local, Location: time.UTC})

	replies := r.Handle(context.Background(), text("memories"))
	if len(replies) != 1 {
		t.Fatalf("replies = %+v", replies)
	}
	want := "Saturday, 2 March 2024\n  16:30  Tea with Meena (happy)\n\nFriday, 1 March 2024\n  07:00  Morning walk"
	if replies[0].Text != want {
		t.Errorf("reply =\n%s\nwant\n%s", replies[0].Text, want)
	}
	if len(local.recs) != 2 {
		t.Errorf("cache not refreshed: %+v", local.recs)
	}

	filtered := r.Handle(context.Background(), text("memories park"))
	if len(filtered) != 1 || filtered[0].Text != NoMemoriesText {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestHandle_MemoriesFromCache(t *testing.T) {
	local := &fakeMirror{recs: []memory.Record{{Text: "offline note", Timestamp: time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)}}}
	r := NewRouter(Deps{Saver: &fakeSaver{}, Remote: fakeReader{err: errors.New("offline")}, Local: local, Location: time.UTC})

	replies := r.Handle(context.Background(), text("memories"))
	if len(replies) != 2 || !replies[0].Notice || replies[0].Text != FromCacheNoticeText {
		t.Fatalf("replies = %+v", replies)
	}
	if !strings.Contains(replies[1].Text, "offline note") {
		t.Errorf("timeline = %q", replies[1].Text)
	}
}

func TestFormatTimeline_Limit(t *testing.T) {
	var recs []memory.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, memory.Record{Text: "note", Timestamp: time.Date(2024, 3, 1+i, 9, 0, 0, 0, time.UTC)})
	}
	out := formatTimeline(capture.GroupByDay(recs, "", time.UTC), time.UTC, 3)
	if strings.Count(out, "note") != 3 || !strings.HasSuffix(out, "and 2 more.") {
		t.Errorf("out =\n%s", out)
	}
}

// --- voice notes ---

func newTranscribeServer(t *testing.T, resp any) *transcript.BatchTranscriber {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return transcript.NewBatchTranscriber(srv.URL+"/transcribe", "")
}

func voice() matrix.Message {
	return matrix.Message{RoomID: "!r:x", Kind: matrix.KindAudio, Audio: &matrix.Attachment{URI: "mxc://x/a", MimeType: "audio/ogg", Filename: "note.ogg"}}
}

func TestHandle_VoiceNoteSaved(t *testing.T) {
	saver := &fakeSaver{kind: capture.PersistedRemoteAndLocal}
	r := NewRouter(Deps{
		Saver:       saver,
		Media:       fakeMedia{data: []byte("OggS...")},
		Transcriber: newTranscribeServer(t, map[string]string{"transcript": " we planted roses today "}),
	})

	replies := r.Handle(context.Background(), voice())
	if len(replies) != 1 || replies[0].Text != "Saved memory: we planted roses today" {
		t.Errorf("replies = %+v", replies)
	}
	if len(saver.texts) != 1 {
		t.Errorf("saved = %v", saver.texts)
	}
}

func TestHandle_VoiceNoteUnavailable(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
	}{
		{"no transcriber", Deps{Media: fakeMedia{data: []byte("x")}}},
		{"download fails", Deps{Media: fakeMedia{err: errors.New("404")}, Transcriber: transcript.NewBatchTranscriber("http://127.0.0.1:1/t", "")}},
		{"empty clip", Deps{Media: fakeMedia{}, Transcriber: transcript.NewBatchTranscriber("http://127.0.0.1:1/t", "")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saver := &fakeSaver{}
			tt.deps.Saver = saver
			replies := NewRouter(tt.deps).Handle(context.Background(), voice())
			if len(replies) != 1 || replies[0].Text != NoVoiceText {
				t.Errorf("replies = %+v", replies)
			}
			if len(saver.texts) != 0 {
				t.Error("nothing should be saved")
			}
		})
	}
}

func TestHandle_VoiceNoteTranscriptionError(t *testing.T) {
	saver := &fakeSaver{}
	r := NewRouter(Deps{
		Saver:       saver,
		Media:       fakeMedia{data: []byte("x")},
		Transcriber: newTranscribeServer(t, map[string]string{"error": "unsupported codec"}),
	})
	replies := r.Handle(context.Background(), voice())
	if len(replies) != 1 || replies[0].Text != NoVoiceText || len(saver.texts) != 0 {
		t.Errorf("replies = %+v saved = %v", replies, saver.texts)
	}
}

// --- Serve ---

func TestServe_SendsTextAndNotices(t *testing.T) {
	r := NewRouter(Deps{Saver: &fakeSaver{kind: capture.PersistedLocalOnly}})
	s := &fakeSender{}
	r.Serve(context.Background(), s, text("remember tea"))

	if len(s.sent) != 2 {
		t.Fatalf("sent = %+v", s.sent)
	}
	if s.sent[0].notice || !s.sent[1].notice || s.sent[1].room != "!r:x" {
		t.Errorf("sent = %+v", s.sent)
	}
}

func TestServe_IgnoresChatter(t *testing.T) {
	s := &fakeSender{}
	NewRouter(Deps{Saver: &fakeSaver{}}).Serve(context.Background(), s, text("good morning"))
	if len(s.sent) != 0 {
		t.Errorf("sent = %+v", s.sent)
	}
}
