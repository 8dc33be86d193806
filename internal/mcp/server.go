package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kwhuang/manualqa/internal/answer"
	"github.com/kwhuang/manualqa/internal/retrieval"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "manualqa"
)

// snippetLimit caps the passage text returned per search result, in runes.
const snippetLimit = 500

// Server answers MCP requests over stdin/stdout. It exposes the manual as
// two tools: a raw passage search and a full question-answering call.
type Server struct {
	retriever    *retrieval.Retriever
	orchestrator *answer.Orchestrator
	version      string

	reader *bufio.Reader
	writer io.Writer

	initialized bool
}

// NewServer creates an MCP server bound to stdin/stdout.
func NewServer(retriever *retrieval.Retriever, orchestrator *answer.Orchestrator, version string) *Server {
	return &Server{
		retriever:    retriever,
		orchestrator: orchestrator,
		version:      version,
		reader:       bufio.NewReader(os.Stdin),
		writer:       os.Stdout,
	}
}

// Run processes requests until stdin closes or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				log.Info("MCP server received EOF, shutting down")
				return nil
			}
			log.Error("Failed to read from stdin", "error", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.sendError(nil, ErrorCodeParse, "Parse error", err.Error())
			continue
		}

		s.handleRequest(ctx, req)
	}
}

// handleRequest processes a single MCP request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", req.ID)

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized":
		// Notification, no response expected
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result, err = s.handleListTools()
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	if err != nil {
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
		return
	}

	s.sendResult(req.ID, result)
}

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities: ServerCapabilities{
			Tools: &ToolsCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: s.version,
		},
	}, nil
}

// handleListTools returns the list of available tools.
func (s *Server) handleListTools() (*ListToolsResult, error) {
	tools := []Tool{
		{
			Name:        "manual_search",
			Description: "Search the manual for passages relevant to a natural-language question. Returns the raw passages with their source files and similarity scores.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"question": {
						Type:        "string",
						Description: "The question or topic to search for",
					},
					"limit": {
						Type:        "number",
						Description: "Maximum number of passages to return",
						Default:     10,
					},
				},
				Required: []string{"question"},
			},
		},
		{
			Name:        "manual_ask",
			Description: "Ask a question about the manual and get a complete grounded answer with its sources.",
			InputSchema: JSONSchema{
				Type: "object",
				Properties: map[string]Property{
					"question": {
						Type:        "string",
						Description: "The question to answer",
					},
					"model": {
						Type:        "string",
						Description: "Generation model override (defaults to the configured model)",
					},
				},
				Required: []string{"question"},
			},
		},
	}

	return &ListToolsResult{Tools: tools}, nil
}

// handleCallTool executes a tool and returns the result.
func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	log.Debug("Calling tool", "name", p.Name)

	var resultText string
	var isError bool

	switch p.Name {
	case "manual_search":
		resultText, isError = s.toolSearch(ctx, p.Arguments)
	case "manual_ask":
		resultText, isError = s.toolAsk(ctx, p.Arguments)
	default:
		return &CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	return &CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: resultText}},
		IsError: isError,
	}, nil
}

// toolSearch retrieves relevant manual passages.
func (s *Server) toolSearch(ctx context.Context, args map[string]any) (string, bool) {
	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return "Error: question is required", true
	}

	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	results, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		return fmt.Sprintf("Error: search failed: %v", err), true
	}
	if len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		return "No relevant passages found.", false
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d relevant passages:\n\n", len(results)))
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("[%d] %s (similarity %.3f)\n", r.Rank, r.Chunk.Source, r.Similarity))
		content := r.Chunk.Content
		if runes := []rune(content); len(runes) > snippetLimit {
			content = string(runes[:snippetLimit]) + "..."
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}

	return sb.String(), false
}

// toolAsk runs the full answer pipeline and collects the streamed answer.
func (s *Server) toolAsk(ctx context.Context, args map[string]any) (string, bool) {
	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return "Error: question is required", true
	}
	model, _ := args["model"].(string)

	stream := s.orchestrator.Ask(ctx, question, model)
	defer stream.Close()

	var sb strings.Builder
	for fragment := range stream.Fragments() {
		sb.WriteString(fragment)
	}

	if sources := stream.Sources(); len(sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for _, src := range sources {
			sb.WriteString(fmt.Sprintf("[%d] %s (similarity %.3f)\n", src.Rank, src.Chunk.Source, src.Similarity))
		}
	}

	return sb.String(), stream.Err() != nil
}

// sendResult sends a successful response.
func (s *Server) sendResult(id any, result any) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	s.send(resp)
}

// sendError sends an error response.
func (s *Server) sendError(id any, code int, message, data string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	s.send(resp)
}

// send writes a response line to stdout.
func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	fmt.Fprintln(s.writer, string(data))
}
