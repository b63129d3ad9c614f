package transcript

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HrishitaRaj/smriti-ai/common/spec/speech"
)

// scriptedRecognizer emits a fixed sequence of events.
type scriptedRecognizer struct {
	unavailable error
	events      []speech.Result
	failAfter   error
	cancel      context.CancelFunc
}

func (s *scriptedRecognizer) Available(context.Context) error { return s.unavailable }

func (s *scriptedRecognizer) Recognize(ctx context.Context, emit func(speech.Result)) error {
	for _, e := range s.events {
		emit(e)
	}
	if s.cancel != nil {
		s.cancel()
		return ctx.Err()
	}
	return s.failAfter
}

func TestListen_StreamCompletes(t *testing.T) {
	rec := New(nil)
	src := &scriptedRecognizer{events: []speech.Result{
		speech.Partial("my"),
		speech.Partial("my name"),
		speech.Partial("my name is"),
		speech.Final("my name is Sam"),
	}}

	if err := Listen(context.Background(), rec, src, ""); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if rec.State() != Stopped {
		t.Errorf("State = %v, want stopped", rec.State())
	}
	if got := rec.LiveText(); got != "my name is Sam" {
		t.Errorf("LiveText = %q", got)
	}
}

func TestListen_UnavailableLeavesIdle(t *testing.T) {
	rec := New(nil)
	src := &scriptedRecognizer{unavailable: errors.New("permission denied")}

	err := Listen(context.Background(), rec, src, "typed")
	if !errors.Is(err, ErrRecognitionUnavailable) {
		t.Fatalf("err = %v, want ErrRecognitionUnavailable", err)
	}
	if rec.State() != Idle {
		t.Errorf("State = %v, want idle", rec.State())
	}
	if err := Listen(context.Background(), rec, nil, ""); !errors.Is(err, ErrRecognitionUnavailable) {
		t.Errorf("nil recogniser err = %v", err)
	}
}

func TestListen_RecognizerErrorKeepsText(t *testing.T) {
	rec := New(nil)
	boom := errors.New("network")
	src := &scriptedRecognizer{
		events:    []speech.Result{speech.Final("hello"), speech.Partial("wor")},
		failAfter: boom,
	}

	err := Listen(context.Background(), rec, src, "")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	snap := rec.Snapshot()
	if snap.State != Stopped || snap.LiveText != "hello wor" || !errors.Is(snap.Err, boom) {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestListen_CancelDropsInterim(t *testing.T) {
	rec := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedRecognizer{
		events: []speech.Result{speech.Final("saved"), speech.Partial("half")},
		cancel: cancel,
	}

	if err := Listen(ctx, rec, src, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := rec.LiveText(); got != "saved" {
		t.Errorf("LiveText = %q, want %q", got, "saved")
	}
}

func TestListen_SecondSessionRejected(t *testing.T) {
	rec := New(nil)
	_ = rec.Start("")
	src := &scriptedRecognizer{}
	if err := Listen(context.Background(), rec, src, ""); !errors.Is(err, ErrAlreadyListening) {
		t.Errorf("err = %v, want ErrAlreadyListening", err)
	}
}

func TestLineRecognizer(t *testing.T) {
	input := strings.Join([]string{
		`{"interim":"went","ts":"2026-10-19T10:00:00Z"}`,
		``,
		`{"finals":["went home"],"ts":"2026-10-19T10:00:01Z"}`,
	}, "\n")

	rec := New(nil)
	if err := Listen(context.Background(), rec, &LineRecognizer{R: strings.NewReader(input)}, "we"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got := rec.LiveText(); got != "we went home" {
		t.Errorf("LiveText = %q", got)
	}
}

func TestLineRecognizer_MalformedLine(t *testing.T) {
	rec := New(nil)
	src := &LineRecognizer{R: strings.NewReader("{oops}\n")}
	if err := Listen(context.Background(), rec, src, ""); err == nil {
		t.Fatal("expected error")
	}
	if rec.State() != Stopped {
		t.Errorf("State = %v, want stopped", rec.State())
	}
}

func TestBatchTranscriber_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("content type: %v", err)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("NextPart: %v", err)
			return
		}
		if part.FormName() != "file" || part.FileName() != "clip.ogg" {
			t.Errorf("part name=%q file=%q", part.FormName(), part.FileName())
		}
		data, _ := io.ReadAll(part)
		if string(data) != "OggS" {
			t.Errorf("audio = %q", data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"transcript":" visited grandma "}`)
	}))
	defer srv.Close()

	bt := NewBatchTranscriber(srv.URL, "tok")
	got, err := bt.Transcribe(context.Background(), strings.NewReader("OggS"), "clip.ogg", "audio/ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "visited grandma" {
		t.Errorf("transcript = %q", got)
	}
}

func TestBatchTranscriber_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"unsupported codec"}`)
	}))
	defer srv.Close()

	_, err := NewBatchTranscriber(srv.URL, "").Transcribe(context.Background(), strings.NewReader("x"), "a.wav", "")
	if err == nil || !strings.Contains(err.Error(), "unsupported codec") {
		t.Errorf("err = %v", err)
	}
}

func TestAudioRecognizer_ActsAsSingleFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"transcript":"lunch with Meena"}`)
	}))
	defer srv.Close()

	rec := New(nil)
	src := &AudioRecognizer{
		Transcriber: NewBatchTranscriber(srv.URL, ""),
		Audio:       []byte("RIFF"),
		Filename:    "clip.wav",
	}
	if err := Listen(context.Background(), rec, src, ""); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	snap := rec.Snapshot()
	if snap.LiveText != "lunch with Meena" || snap.ConfirmedBase != "lunch with Meena" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestAudioRecognizer_Unconfigured(t *testing.T) {
	rec := New(nil)
	src := &AudioRecognizer{Audio: []byte("x")}
	if err := Listen(context.Background(), rec, src, ""); !errors.Is(err, ErrRecognitionUnavailable) {
		t.Errorf("err = %v, want ErrRecognitionUnavailable", err)
	}
}
