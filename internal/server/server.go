// Package server exposes the question-answering pipeline over HTTP with
// server-sent events for streaming answers.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/kwhuang/manualqa/internal/answer"
	"github.com/kwhuang/manualqa/internal/index"
)

// Readiness describes the warmup state of the service.
type Readiness string

const (
	ReadyIdle    Readiness = "idle"
	ReadyLoading Readiness = "loading"
	ReadyOK      Readiness = "ok"
	ReadyError   Readiness = "error"
)

// Server is the HTTP front end. The index is loaded in the background at
// startup; queries are rejected with 503 until it is ready.
type Server struct {
	addr         string
	version      string
	orchestrator *answer.Orchestrator
	loader       *index.Loader
	app          *fiber.App

	mu    sync.RWMutex
	state Readiness
}

// New creates a Server. The orchestrator answers queries; the loader is
// warmed in the background when Run is called.
func New(addr, version string, orchestrator *answer.Orchestrator, loader *index.Loader) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	s := &Server{
		addr:         addr,
		version:      version,
		orchestrator: orchestrator,
		loader:       loader,
		app:          app,
		state:        ReadyIdle,
	}

	app.Get("/", s.handleRoot)
	app.Get("/query", s.handleQuery)

	return s
}

// Run warms the index in the background and serves until the listener fails
// or Shutdown is called.
func (s *Server) Run() error {
	go s.warmup()
	log.Info("Starting server", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// State returns the current readiness state.
func (s *Server) State() Readiness {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) setState(state Readiness) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// warmup loads the index so the first query does not pay the cost.
func (s *Server) warmup() {
	s.setState(ReadyLoading)
	if _, err := s.loader.Load(); err != nil {
		log.Error("Index warmup failed", "error", err)
		s.setState(ReadyError)
		return
	}
	log.Info("Index ready")
	s.setState(ReadyOK)
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "manualqa",
		"version": s.version,
		"status":  s.State(),
		"endpoints": []fiber.Map{
			{"path": "/", "method": "GET", "description": "Service status and information"},
			{"path": "/query", "method": "GET", "description": "Ask a question about the manual"},
		},
	})
}

func (s *Server) handleQuery(c *fiber.Ctx) error {
	if s.State() != ReadyOK {
		return fiber.NewError(fiber.StatusServiceUnavailable, "service is starting up, try again shortly")
	}

	question := strings.TrimSpace(c.Query("question"))
	if question == "" {
		return fiber.NewError(fiber.StatusBadRequest, "question must not be empty")
	}
	model := c.Query("model")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")

	// io.Pipe rather than SetBodyStreamWriter: pipe writes block until
	// fasthttp's chunked writer consumes them, so each fragment reaches the
	// client immediately instead of accumulating in an internal buffer.
	pr, pw := io.Pipe()
	go s.streamAnswer(question, model, pw)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// streamAnswer writes the answer as SSE events. Newlines inside a fragment
// are escaped so every event stays a single data line.
func (s *Server) streamAnswer(question, model string, pw *io.PipeWriter) {
	defer pw.Close()

	stream := s.orchestrator.Ask(context.Background(), question, model)
	defer stream.Close()

	for fragment := range stream.Fragments() {
		safe := strings.ReplaceAll(fragment, "\n", "\\n")
		if _, err := fmt.Fprintf(pw, "data: %s\n\n", safe); err != nil {
			// Client went away; Close cancels the generation request.
			if !errors.Is(err, io.ErrClosedPipe) {
				log.Debug("SSE write failed", "error", err)
			}
			return
		}
	}
}
