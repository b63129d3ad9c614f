// Smriti is the memory companion. It captures memories from chat (Matrix or
// the console) and from dictation, saves them to the recall service with a
// local fallback copy, and answers questions about them.
//
// Usage:
//
//	smriti                  run on Matrix when configured, otherwise the console
//	smriti console          read messages from stdin, one per line
//	smriti dictate [emotion] read speech.Result JSON lines from stdin and save the transcript
//	smriti export           write the memories kept on this device as JSON
//	smriti version          print build information
//
// Configuration comes from the YAML file named by SMRITI_CONFIG, overridden by
// environment variables (SMRITI_REMOTE_URL, SMRITI_REMOTE_TOKEN, SMRITI_DB_PATH,
// SMRITI_CACHE_KEY, SMRITI_CACHE_KEY_HEX, SMRITI_DATE_ORDER, SMRITI_TIMEZONE,
// SMRITI_TRANSCRIBE_URL, SMRITI_TRANSCRIBE_TOKEN, MATRIX_HOMESERVER,
// MATRIX_USER_ID, MATRIX_ACCESS_TOKEN, MATRIX_ROOMS, LOG_LEVEL, LOG_FORMAT).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/version"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/app"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/config"
	"github.com/HrishitaRaj/smriti-ai/internal/smriti/observability"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd == "version" {
		fmt.Println("smriti", version.Info())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// stdout carries replies and exports; logs go to stderr.
	logger := observability.New(os.Stderr, cfg.Log.Level, cfg.Log.Format, cfg.Secrets()...)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	smriti, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize smriti", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, smriti, cfg, cmd); err != nil {
		logger.Error("smriti exited with error", "command", cmd, "err", err)
		smriti.Close()
		os.Exit(1)
	}
	smriti.Close()
}

func run(ctx context.Context, smriti *app.App, cfg *config.Config, cmd string) error {
	switch cmd {
	case "":
		if cfg.Matrix.Enabled() {
			return smriti.Run(ctx)
		}
		return smriti.RunConsole(ctx, os.Stdin, os.Stdout)
	case "console":
		return smriti.RunConsole(ctx, os.Stdin, os.Stdout)
	case "dictate":
		emotion := memory.EmotionNone
		if len(os.Args) > 2 {
			e, err := memory.ParseEmotion(os.Args[2])
			if err != nil {
				return err
			}
			emotion = e
		}
		out, err := smriti.Dictate(ctx, os.Stdin, emotion)
		if err != nil {
			return err
		}
		if !out.Persisted() {
			return fmt.Errorf("memory not saved: %s", out.Reason())
		}
		fmt.Printf("Saved memory: %s (%s)\n", out.Record.Text, out.Kind)
		return nil
	case "export":
		return smriti.Export(ctx, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q (want console, dictate, export or version)", cmd)
	}
}
