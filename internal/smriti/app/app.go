// Package app wires the companion together: SQLite store, local cache, remote
// client, capture coordinator, chat router and (optionally) Matrix.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/version"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/cache"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/capture"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/chat"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/config"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/matrix"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/remote"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/store"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/temporal"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/transcript"
)

// consoleRoom is the room ID used for replies in console mode.
const consoleRoom = "console"

// remoteTimeout bounds one request to the recall service. /ask waits on the
// LLM, so it is generous.
const remoteTimeout = 2 * time.Minute

// App is the running companion.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	loc    *time.Location

	store  *store.Store
	log    *cache.MemoryLog
	remote *remote.Client
	coord  *capture.Coordinator
	router *chat.Router
	matrix *matrix.Client
}

// New opens the store and builds every component. Matrix is created only
// when configured; nothing connects until Run.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	st, err := store.New(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	var cacheOpts []cache.Option
	sealer, err := cfg.CacheSealer()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: cache key: %w", err)
	}
	if sealer != nil {
		cacheOpts = append(cacheOpts, cache.WithSealer(sealer))
	}
	memLog := cache.NewMemoryLog(cache.New(st, cacheOpts...), cfg.Cache.Key, logger)

	rc := remote.New(cfg.Remote.URL, cfg.Remote.Token,
		remote.WithHTTPClient(&http.Client{Timeout: remoteTimeout}))

	sessions := capture.NewSessionLog(logger)
	sessions.Subscribe(func(e capture.Entry) {
		logger.Debug("session log", "seq", e.Seq, "kind", int(e.Kind), "text", e.Text, "trace_id", e.TraceID)
	})
	coord := capture.NewCoordinator(rc, memLog,
		capture.WithResolver(temporal.New(cfg.DateOrder())),
		capture.WithLocation(loc),
		capture.WithSessionLog(sessions),
		capture.WithLogger(logger),
	)

	a := &App{
		cfg:    cfg,
		logger: logger,
		loc:    loc,
		store:  st,
		log:    memLog,
		remote: rc,
		coord:  coord,
	}

	deps := chat.Deps{
		Saver:    coord,
		Asker:    rc,
		Remote:   rc,
		Local:    memLog,
		Location: loc,
		Logger:   logger,
	}
	if cfg.Transcribe.URL != "" {
		deps.Transcriber = transcript.NewBatchTranscriber(cfg.Transcribe.URL, cfg.Transcribe.Token)
	}

	if cfg.Matrix.Enabled() {
		mc, err := matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
			DB:          st.DB(),
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		a.matrix = mc
		deps.Media = mc
	}
	a.router = chat.NewRouter(deps)
	return a, nil
}

// Coordinator exposes the capture pipeline.
func (a *App) Coordinator() *capture.Coordinator { return a.coord }

// Run starts the Matrix surface and blocks until ctx is done. It fails when
// Matrix is not configured; use RunConsole instead.
func (a *App) Run(ctx context.Context) error {
	if a.matrix == nil {
		return fmt.Errorf("app: matrix is not configured")
	}
	a.checkRemote(ctx)

	if err := a.matrix.Start(ctx, func(evtCtx context.Context, msg matrix.Message) {
		if err := a.matrix.SetTyping(evtCtx, msg.RoomID, true); err != nil {
			a.logger.Debug("app: set typing failed", "room", msg.RoomID, "err", err)
		}
		a.router.Serve(evtCtx, a.matrix, msg)
		if err := a.matrix.SetTyping(evtCtx, msg.RoomID, false); err != nil {
			a.logger.Debug("app: clear typing failed", "room", msg.RoomID, "err", err)
		}
	}); err != nil {
		return fmt.Errorf("app: start matrix: %w", err)
	}
	for _, room := range a.cfg.Matrix.Rooms {
		if err := a.matrix.SendNotice(ctx, room, "Smriti is listening. Say \"help\" to see what I can do."); err != nil {
			a.logger.Warn("app: startup notice failed", "room", room, "err", err)
		}
	}
	a.logger.Info("smriti is running", "version", version.Version, "user", a.matrix.UserID())

	<-ctx.Done()
	a.logger.Info("shutting down")
	a.matrix.Stop()
	return nil
}

// RunConsole reads one message per line from in and writes replies to out
// until in is exhausted or ctx is done.
func (a *App) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	a.checkRemote(ctx)
	w := &consoleSender{w: out}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		a.router.Serve(ctx, w, matrix.Message{RoomID: consoleRoom, Sender: "console", Kind: matrix.KindText, Body: line})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("app: read console: %w", err)
	}
	return w.err
}

// Dictate runs one recognition session over newline-delimited speech.Result
// events from in and saves the reconciled transcript as a memory.
func (a *App) Dictate(ctx context.Context, in io.Reader, emotion memory.Emotion) (capture.Outcome, error) {
	rec := transcript.New(a.logger)
	rec.Subscribe(func(s transcript.Snapshot) {
		a.logger.Debug("dictate: transcript", "state", s.State.String(), "live_text", s.LiveText)
	})
	if err := transcript.Listen(ctx, rec, &transcript.LineRecognizer{R: in}, ""); err != nil {
		return capture.Outcome{}, fmt.Errorf("app: dictate: %w", err)
	}
	return a.coord.AddMemory(ctx, rec.LiveText(), emotion)
}

// Export writes the locally cached memories as indented JSON.
func (a *App) Export(ctx context.Context, w io.Writer) error {
	return a.log.Export(ctx, w)
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

func (a *App) checkRemote(ctx context.Context) {
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	h, err := a.remote.Health(hctx)
	if err != nil {
		a.logger.Warn("app: memory service unreachable; memories will be kept on this device",
			"url", a.remote.BaseURL(), "err", err)
		return
	}
	a.logger.Info("app: memory service reachable", "url", a.remote.BaseURL(), "version", h.Version, "memories", h.Memories)
}

// consoleSender prints replies; notices are prefixed with "* ".
type consoleSender struct {
	w   io.Writer
	err error
}

func (c *consoleSender) SendText(_ context.Context, _, text string) error {
	return c.write(text + "\n")
}

func (c *consoleSender) SendNotice(_ context.Context, _, text string) error {
	return c.write("* " + text + "\n")
}

func (c *consoleSender) write(s string) error {
	if c.err != nil {
		return c.err
	}
	_, c.err = io.WriteString(c.w, s)
	return c.err
}
