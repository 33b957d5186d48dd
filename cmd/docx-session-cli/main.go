// Command docx-session-cli is an interactive readline REPL over a single
// document session, generalizing the teacher's internal/ui.Chat loop
// (readline prompt + IntentParser + handleIntent switch) from a chat
// session to a document-patch session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/doxsess/docx-session-engine/internal/cli"
	"github.com/doxsess/docx-session-engine/internal/events"
	"github.com/doxsess/docx-session-engine/internal/external"
	"github.com/doxsess/docx-session-engine/internal/patch"
	"github.com/doxsess/docx-session-engine/internal/session"
	"github.com/doxsess/docx-session-engine/internal/wal"
	"github.com/doxsess/docx-session-engine/internal/wordxml"
)

const version = "0.1.0"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version")
		storeDir    = flag.String("store", "", "WAL/checkpoint store directory (default: DOCX_STORE_DIR or ./.docx-sessions)")
		openPath    = flag.String("open", "", "Open an existing .docx at this path instead of starting a blank session")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `docx-session-cli v%s - interactive document session shell

Usage: docx-session-cli [options]

Slash commands: /undo [n] /redo [n] /jump <n> /history /status /save [path]
/compact /help /exit. A line starting with "[" is parsed as a raw JSON
patch-operation array and applied via apply_patch.

Options:
`, version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("docx-session-cli v%s\n", version)
		return
	}

	dir := *storeDir
	if dir == "" {
		dir = os.Getenv("DOCX_STORE_DIR")
	}
	if dir == "" {
		dir = ".docx-sessions"
	}
	store, err := wal.Open(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := slog.New(newLogHandler(slog.LevelWarn))
	bus := events.New()
	mgr := session.NewManager(store, wordxml.Codec{}, bus, session.WithLogger(log))
	if err := mgr.RestoreSessions(); err != nil {
		log.Warn("restoring sessions failed", "err", err)
	}

	var sess *session.Session
	if *openPath != "" {
		sess, err = mgr.Open(*openPath)
	} else {
		sess, err = mgr.Create()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tracker, err := external.New(mgr, log)
	if err == nil {
		_ = tracker.Watch(sess.ID)
		_ = tracker.Start(context.Background())
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mdocx>\033[0m ",
		HistoryFile:     ".docx-sessions/history",
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		rl.Close()
		os.Exit(0)
	}()

	fmt.Printf("Session %s ready. Type /help for commands.\n", sess.ID)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			break
		}

		intent := cli.Parse(strings.TrimSpace(line))
		if intent == nil {
			continue
		}
		if intent.Type == cli.IntentExit {
			break
		}
		if err := handle(mgr, sess.ID, intent); err != nil {
			fmt.Printf("\033[31mError: %v\033[0m\n", err)
		}
	}
}

// newLogHandler builds a text handler by default, matching the teacher's
// bare-fmt-to-stderr register, or a JSON handler when DOCX_LOG_JSON=1.
func newLogHandler(level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("DOCX_LOG_JSON") == "1" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func handle(mgr *session.Manager, sessionID string, intent *cli.Intent) error {
	switch intent.Type {
	case cli.IntentHelp:
		fmt.Println("/undo [n] /redo [n] /jump <n> /history /status /save [path] /compact /exit")
		return nil

	case cli.IntentPatch:
		var ops []patch.Op
		if err := json.Unmarshal(intent.Ops, &ops); err != nil {
			return fmt.Errorf("parse patch ops: %w", err)
		}
		resp, err := mgr.ApplyPatch(sessionID, ops, false)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return nil

	case cli.IntentUndo:
		r, err := mgr.Undo(sessionID, intent.Steps)
		if err != nil {
			return err
		}
		fmt.Println(r.Message)
		return nil

	case cli.IntentRedo:
		r, err := mgr.Redo(sessionID, intent.Steps)
		if err != nil {
			return err
		}
		fmt.Println(r.Message)
		return nil

	case cli.IntentJumpTo:
		r, err := mgr.JumpTo(sessionID, intent.Steps)
		if err != nil {
			return err
		}
		fmt.Println(r.Message)
		return nil

	case cli.IntentHistory:
		h, err := mgr.GetHistory(sessionID)
		if err != nil {
			return err
		}
		for _, item := range h {
			fmt.Printf("%3d  %-14s %s  %s\n", item.Position, item.Type, item.Timestamp.Format("15:04:05"), item.Description)
		}
		return nil

	case cli.IntentStatus:
		h, err := mgr.GetHistory(sessionID)
		if err != nil {
			return err
		}
		fmt.Printf("session %s: %d timeline entries\n", sessionID, len(h))
		return nil

	case cli.IntentSave:
		if err := mgr.Save(sessionID, intent.Path); err != nil {
			return err
		}
		fmt.Println("saved")
		return nil

	case cli.IntentCompact:
		if err := mgr.Compact(sessionID, false); err != nil {
			return err
		}
		fmt.Println("compacted")
		return nil

	default:
		fmt.Println("unrecognized input; type /help")
		return nil
	}
}
