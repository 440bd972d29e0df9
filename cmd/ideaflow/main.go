package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"ideaflow/cli/internal/archive"
	"ideaflow/cli/internal/command"
	"ideaflow/cli/internal/config"
	"ideaflow/cli/internal/db"
	"ideaflow/cli/internal/lifecycle"
	"ideaflow/cli/internal/logging"
	"ideaflow/cli/internal/phase"
	"ideaflow/cli/internal/records"
	"ideaflow/cli/internal/workspace"
)

var version = "dev"

func main() {
	app := command.BuildApp(command.Deps{
		LoadConfig:   config.LoadConfig,
		RunOpen:      runOpen,
		RunMigrateUp: runMigrateUp,
		SetPause:     setPause,
	})
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runOpen(ctx context.Context, cfg config.Config, ideaID, phaseOverride string) error {
	logger := logging.NewLogger(logging.Options{Level: cfg.LogLevel, Component: "ideaflow"})
	logger.Info("starting", "version", version)

	prefsStore := config.NewPrefsStore(cfg.DataDir)
	prefs, err := prefsStore.LoadOrInit()
	if err != nil {
		return err
	}
	if prefs.UserID == "" {
		prefs.UserID = uuid.NewString()
		if err := prefsStore.Save(prefs); err != nil {
			return err
		}
	}

	var archiveStore *archive.Store
	gdb, err := db.Open(filepath.Join(cfg.DataDir, "archive.db"))
	if err != nil {
		// The archive is best effort; run without it.
		logger.Warn("archive unavailable", "err", err)
	} else if archiveStore, err = archive.NewStore(gdb); err != nil {
		logger.Warn("archive unavailable", "err", err)
		archiveStore = nil
	}

	stdin := bufio.NewReader(os.Stdin)

	var override *phase.Phase
	if p := strings.TrimSpace(phaseOverride); p != "" {
		ph := phase.Phase(p)
		switch ph {
		case phase.Ideation, phase.Planning, phase.Executing:
			override = &ph
		default:
			return fmt.Errorf("unknown phase: %s", p)
		}
	}

	idea := records.Idea{ID: ideaID}
	ws := workspace.New(workspace.Options{
		BaseURL:      cfg.AgentBaseURL,
		UserID:       prefs.UserID,
		UserName:     prefs.UserName,
		Logger:       logger,
		Records:      records.NewClient(cfg.RecordsBaseURL),
		Picker:       &stdinPicker{in: stdin, out: os.Stdout},
		Archive:      archiveStore,
		InitialPhase: override,
		Idea:         idea,
	})
	ws.SetPauseBetweenPhases(prefs.PauseBetweenPhases)

	mgr := lifecycle.NewManager()
	mgr.AddRun("repl", func(ctx context.Context) error {
		ws.Open(ctx)
		return runREPL(ctx, ws, stdin, os.Stdout)
	})
	mgr.AddShutdown("workspace", func(context.Context) error {
		ws.Close()
		return nil
	})
	if gdb != nil {
		mgr.AddShutdown("archive-db", func(context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
	}
	return mgr.StartAndWait(ctx, os.Interrupt, syscall.SIGTERM)
}

func runREPL(ctx context.Context, ws *workspace.Workspace, in *bufio.Reader, out io.Writer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(out, "[%s] > ", ws.CurrentPhase())
		line, err := in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			ws.SendMessage(ctx, line)
			continue
		}
		switch cmd, arg, _ := strings.Cut(line[1:], " "); cmd {
		case "quit", "exit":
			return nil
		case "plan":
			if err := ws.AdvanceToPlanning(ctx); err != nil {
				fmt.Fprintln(out, "cannot advance:", err)
			}
		case "execute":
			if err := ws.AdvanceToExecuting(ctx); err != nil {
				fmt.Fprintln(out, "cannot advance:", err)
			}
		case "title":
			ws.SetTitle(arg)
		case "summary":
			ws.SetSummary(arg)
		case "cancel":
			ws.Cancel(ctx)
		case "clear":
			ws.ActiveAgent().ClearHistory(ctx)
		case "pause":
			ws.SetPauseBetweenPhases(strings.TrimSpace(arg) != "off")
		case "status":
			printStatus(out, ws)
		default:
			fmt.Fprintln(out, "unknown command:", cmd)
		}
	}
}

func printStatus(out io.Writer, ws *workspace.Workspace) {
	a := ws.ActiveAgent()
	fmt.Fprintf(out, "phase=%s connected=%v busy=%v queued=%d view=%s doc-synced=%v\n",
		ws.CurrentPhase(), a.IsConnected(), a.IsLoading(), a.QueuedCount(), ws.View(), ws.DocumentSynced())
	for _, co := range ws.Coauthors() {
		fmt.Fprintf(out, "  coauthor %s (%s)\n", co.UserName, co.UserID)
	}
	if e := a.ConnError(); e != "" {
		fmt.Fprintln(out, "connectivity:", e)
	}
	if e := ws.LastError(); e != "" {
		fmt.Fprintln(out, "error:", e)
	}
	p := ws.Plan()
	for _, ph := range p.Phases {
		done, total := p.Progress(ph.ID)
		fmt.Fprintf(out, "  phase %s (%s): %d/%d tasks\n", ph.ID, ph.Title, done, total)
	}
}

func runMigrateUp(_ context.Context, cfg config.Config) error {
	gdb, err := db.Open(filepath.Join(cfg.DataDir, "archive.db"))
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func setPause(_ context.Context, cfg config.Config, pause bool) error {
	store := config.NewPrefsStore(cfg.DataDir)
	prefs, err := store.LoadOrInit()
	if err != nil {
		return err
	}
	prefs.PauseBetweenPhases = pause
	return store.Save(prefs)
}

// stdinPicker is the directory-selection side channel used when executing
// is requested before a working directory was chosen.
type stdinPicker struct {
	in  *bufio.Reader
	out io.Writer
}

func (p *stdinPicker) Pick(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	fmt.Fprint(p.out, "working directory: ")
	line, err := p.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var _ phase.DirectoryPicker = (*stdinPicker)(nil)
