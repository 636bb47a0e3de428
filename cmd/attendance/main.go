// attendance is the operator console. It loads the roster, then lets the
// operator open one event at a time; while an event is open a local web
// listener accepts scans from phones on the same network.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"attendance_service/internal/attendance"
	"attendance_service/internal/config"
	"attendance_service/internal/console"
	"attendance_service/internal/logger"
	"attendance_service/internal/page"
	"attendance_service/internal/roster"
	"attendance_service/internal/scan"
	"attendance_service/internal/server"
	"attendance_service/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("attendance", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (yaml, json or toml); ATTEND_* environment variables override it")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stdout, "Usage: attendance [--config FILE]\n\n%s", flagSet.FlagUsages())
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	users, err := roster.Open(cfg.RosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	records, err := attendance.NewLog(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("storage directory %s: %w", cfg.DataDir, err)
	}
	renderer, err := page.New(page.DefaultResetDelay)
	if err != nil {
		return fmt.Errorf("scan page: %w", err)
	}

	sess := session.New(nil)
	endpoint := scan.NewEndpoint(users, records, sess, scan.Options{
		RescanInterval: cfg.RescanInterval,
		Logger:         log,
	})
	listener := server.NewListener(server.Options{
		Addr:               cfg.Addr(),
		MaxConcurrentScans: cfg.MaxConcurrentScans,
		ScanRatePerMinute:  cfg.ScanRatePerMinute,
		ScanBurst:          cfg.ScanBurst,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		Logger:             log,
	}, endpoint, renderer, sess)
	sess.SetRunner(listener)

	log.Info("attendance ready",
		"users", users.Len(),
		"roster", cfg.RosterPath,
		"data_dir", cfg.DataDir,
		"addr", cfg.Addr(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	con := &console.Console{
		In:      linerPrompter{state: line},
		Out:     os.Stdout,
		Roster:  users,
		Records: records,
		Session: sess,
		Events:  cfg.Events,
		ScanURL: func() string {
			return console.ScanURL(console.LocalIP(), listener.Addr())
		},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          log,
	}
	runErr := con.Run(ctx)

	if _, open := sess.Current(); open {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if _, err := sess.Close(closeCtx); err != nil {
			log.Warn("close event session", "err", err)
		}
	}
	return runErr
}

// linerPrompter reports Ctrl-C and Ctrl-D as io.EOF so the console exits
// cleanly.
type linerPrompter struct {
	state *liner.State
}

func (p linerPrompter) Prompt(prompt string) (string, error) {
	text, err := p.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if text != "" {
		p.state.AppendHistory(text)
	}
	return text, nil
}
