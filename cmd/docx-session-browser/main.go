// Command docx-session-browser exposes a read-only HTTP view over live
// document sessions: session listing, history, and rendered snapshots,
// for a browser-based inspector to poll. Grounded in the pack's gin +
// gin-contrib/cors stack (no teacher file wires an HTTP server, so this
// command follows gin's own conventional router/middleware idiom rather
// than a specific example file).
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/doxsess/docx-session-engine/internal/docxerr"
	"github.com/doxsess/docx-session-engine/internal/events"
	"github.com/doxsess/docx-session-engine/internal/export"
	"github.com/doxsess/docx-session-engine/internal/session"
	"github.com/doxsess/docx-session-engine/internal/wal"
	"github.com/doxsess/docx-session-engine/internal/wordxml"
)

const version = "0.1.0"

func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version")
		storeDir    = flag.String("store", "", "WAL/checkpoint store directory (default: DOCX_STORE_DIR or ./.docx-sessions)")
		addr        = flag.String("addr", ":8089", "Listen address")
	)
	flag.Parse()
	if *showVersion {
		fmt.Printf("docx-session-browser v%s\n", version)
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

	log := slog.New(newLogHandler(slog.LevelInfo))
	mgr := session.NewManager(store, wordxml.Codec{}, events.New(), session.WithLogger(log))
	if err := mgr.RestoreSessions(); err != nil {
		log.Warn("restoring sessions failed", "err", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET"},
		MaxAge:       time.Hour,
	}))

	registerRoutes(r, mgr)

	log.Info("listening", "addr", *addr)
	if err := r.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
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

func registerRoutes(r *gin.Engine, mgr *session.Manager) {
	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": mgr.ListSessions()})
	})

	r.GET("/sessions/:id", func(c *gin.Context) {
		sess, err := mgr.Get(c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":                      sess.ID,
			"source_path":             sess.SourcePath,
			"cursor":                  sess.Cursor,
			"created_at":              sess.CreatedAt,
			"last_modified_at":        sess.LastModifiedAt,
			"external_change_pending": sess.ExternalChangePending,
		})
	})

	r.GET("/sessions/:id/history", func(c *gin.Context) {
		h, err := mgr.GetHistory(c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": h})
	})

	r.GET("/sessions/:id/snapshot", func(c *gin.Context) {
		sess, err := mgr.Get(c.Param("id"))
		if err != nil {
			writeErr(c, err)
			return
		}
		format := c.DefaultQuery("format", "html")
		switch format {
		case "html":
			html, err := export.HTML(sess.Tree)
			if err != nil {
				writeErr(c, err)
				return
			}
			c.Data(http.StatusOK, "text/html; charset=utf-8", html)
		case "markdown", "md":
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(export.Markdown(sess.Tree)))
		case "pdf":
			pdfBytes, err := export.PDF(c.Request.Context(), mgr.Codec(), sess.Tree)
			if err != nil {
				writeErr(c, err)
				return
			}
			c.Data(http.StatusOK, "application/pdf", pdfBytes)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format " + format})
		}
	})
}

func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if docxerr.Is(err, docxerr.SessionNotFound) {
		status = http.StatusNotFound
	} else if docxerr.Is(err, docxerr.PatchShape) || docxerr.Is(err, docxerr.PatchSemantic) {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
