// Command docx-session-rpcd is a line-delimited JSON RPC server over
// stdio, the transport a tool-calling caller (an editor extension, an
// agent harness) drives directly: one JSON request per line in, one JSON
// response per line out. It generalizes the teacher's cmd/goclode single
// flag-parsing entrypoint (cmd/goclode/main.go) to a long-running daemon
// instead of an interactive chat loop.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/doxsess/docx-session-engine/internal/docxerr"
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
		debug       = flag.Bool("debug", false, "Enable debug logging")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `docx-session-rpcd v%s - persistent document session engine

Usage: docx-session-rpcd [options]

Reads one JSON request per line on stdin, writes one JSON response per
line on stdout. Methods: create_session, open_session, list_sessions,
apply_patch, undo, redo, jump_to, get_history, save, compact,
acknowledge_external_change, close_session.

Options:
`, version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("docx-session-rpcd v%s\n", version)
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(newLogHandler(level))

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

	bus := events.New()
	mgr := session.NewManager(store, wordxml.Codec{}, bus, session.WithLogger(log))
	if err := mgr.RestoreSessions(); err != nil {
		log.Warn("restoring sessions failed", "err", err)
	}

	tracker, err := external.New(mgr, log)
	if err != nil {
		log.Warn("external tracker unavailable", "err", err)
	} else if err := tracker.Start(context.Background()); err != nil {
		log.Warn("external tracker failed to start", "err", err)
	}

	runLoop(mgr, tracker, os.Stdin, os.Stdout, log)
}

// newLogHandler builds a text handler by default, matching the teacher's
// bare-fmt-to-stderr register, or a JSON handler when DOCX_LOG_JSON=1 for
// callers that want to scrape logs programmatically.
func newLogHandler(level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("DOCX_LOG_JSON") == "1" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func runLoop(mgr *session.Manager, tracker *external.Tracker, in *os.File, out *os.File, log *slog.Logger) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 64<<20)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			enc.Encode(response{Error: &rpcError{Kind: string(docxerr.PatchShape), Message: "malformed request: " + err.Error()}})
			continue
		}
		resp := dispatch(mgr, tracker, req)
		if err := enc.Encode(resp); err != nil {
			log.Error("failed to write response", "err", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error("stdin read failed", "err", err)
	}
}

// request is the envelope every RPC call arrives in.
type request struct {
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method"`
	SessionID string          `json:"session_id,omitempty"`
	Path      string          `json:"path,omitempty"`
	Ops       []patch.Op      `json:"ops,omitempty"`
	DryRun    bool            `json:"dry_run,omitempty"`
	Steps     int             `json:"steps,omitempty"`
	Position  int             `json:"position,omitempty"`
	Force     bool            `json:"force,omitempty"`
}

type response struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errResponse(id string, err error) response {
	kind := string(docxerr.StorageFailure)
	var e *docxerr.Error
	if asDocxErr(err, &e) {
		kind = string(e.Kind)
	}
	return response{ID: id, Error: &rpcError{Kind: kind, Message: err.Error()}}
}

func asDocxErr(err error, target **docxerr.Error) bool {
	for err != nil {
		if e, ok := err.(*docxerr.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func dispatch(mgr *session.Manager, tracker *external.Tracker, req request) response {
	switch req.Method {
	case "create_session":
		s, err := mgr.Create()
		if err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: map[string]any{"session_id": s.ID}}

	case "open_session":
		s, err := mgr.Open(req.Path)
		if err != nil {
			return errResponse(req.ID, err)
		}
		if tracker != nil {
			_ = tracker.Watch(s.ID)
		}
		return response{ID: req.ID, Result: map[string]any{"session_id": s.ID}}

	case "list_sessions":
		return response{ID: req.ID, Result: mgr.ListSessions()}

	case "apply_patch":
		resp, err := mgr.ApplyPatch(req.SessionID, req.Ops, req.DryRun)
		if err != nil {
			return errResponse(req.ID, err)
		}
		if tracker != nil && !req.DryRun {
			_ = tracker.Watch(req.SessionID)
		}
		return response{ID: req.ID, Result: resp}

	case "undo":
		r, err := mgr.Undo(req.SessionID, req.Steps)
		if err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: r}

	case "redo":
		r, err := mgr.Redo(req.SessionID, req.Steps)
		if err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: r}

	case "jump_to":
		r, err := mgr.JumpTo(req.SessionID, req.Position)
		if err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: r}

	case "get_history":
		h, err := mgr.GetHistory(req.SessionID)
		if err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: h}

	case "save":
		if err := mgr.Save(req.SessionID, req.Path); err != nil {
			return errResponse(req.ID, err)
		}
		if tracker != nil {
			_ = tracker.Watch(req.SessionID)
		}
		return response{ID: req.ID, Result: map[string]any{"saved": true}}

	case "compact":
		if err := mgr.Compact(req.SessionID, req.Force); err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: map[string]any{"compacted": true}}

	case "acknowledge_external_change":
		if err := mgr.AcknowledgeExternalChange(req.SessionID); err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: map[string]any{"acknowledged": true}}

	case "close_session":
		if err := mgr.Close(req.SessionID); err != nil {
			return errResponse(req.ID, err)
		}
		return response{ID: req.ID, Result: map[string]any{"closed": true}}

	default:
		return errResponse(req.ID, docxerr.Newf(docxerr.PatchShape, "unknown method %q", req.Method))
	}
}
