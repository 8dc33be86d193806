package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwhuang/manualqa/internal/answer"
	"github.com/kwhuang/manualqa/internal/embeddings"
	"github.com/kwhuang/manualqa/internal/index"
	"github.com/kwhuang/manualqa/internal/llm"
	"github.com/kwhuang/manualqa/internal/retrieval"
)

// stubEmbedder maps text to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	// Unknown text matches nothing.
	return []float32{0, 0}, nil
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int               { return 2 }
func (s *stubEmbedder) Provider() embeddings.Provider { return "stub" }
func (s *stubEmbedder) ModelName() string             { return "stub-model" }

// stubGenerator replays canned fragments.
type stubGenerator struct {
	fragments []string
}

func (g *stubGenerator) Stream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan string, <-chan error) {
	contentCh := make(chan string, len(g.fragments))
	errCh := make(chan error, 1)
	go func() {
		defer close(contentCh)
		defer close(errCh)
		for _, f := range g.fragments {
			select {
			case contentCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return contentCh, errCh
}

func (g *stubGenerator) Provider() llm.Provider { return "stub" }
func (g *stubGenerator) ModelName() string      { return "stub-llm" }

// newTestServer builds a server over a small persisted index.
func newTestServer(t *testing.T, gen llm.Generator) *Server {
	t.Helper()

	flat := index.NewFlat(2)
	require.NoError(t, flat.Add([][]float32{{1, 0}, {0, 1}}))

	dir := t.TempDir()
	require.NoError(t, flat.WriteFile(filepath.Join(dir, index.VectorsFile)))
	chunks := `[{"content":"The mirror modifier duplicates geometry.","source":"mirror.txt"},` +
		`{"content":"The compositor combines passes.","source":"compositor.txt"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, index.ChunksFile), []byte(chunks), 0o644))

	emb := &stubEmbedder{vectors: map[string][]float32{
		"how do I mirror": {1, 0},
	}}
	retriever := retrieval.New(index.NewLoader(dir, "flat"), emb, retrieval.Options{TopK: 10, Threshold: 0.5})
	orch := answer.New(retriever, llm.NewPromptBuilder(5), gen, llm.GenerateOptions{})

	return NewServer(retriever, orch, "test")
}

// respEnvelope reparses a response line with the result left raw.
type respEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// runRequests feeds the lines through the server and returns the responses.
func runRequests(t *testing.T, srv *Server, lines ...string) []respEnvelope {
	t.Helper()

	var out bytes.Buffer
	srv.reader = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	srv.writer = &out

	require.NoError(t, srv.Run(context.Background()))

	var responses []respEnvelope
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp respEnvelope
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		responses = append(responses, resp)
	}
	return responses
}

// callToolText unwraps the text content of a tools/call result.
func callToolText(t *testing.T, resp respEnvelope) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	return result.Content[0].Text, result.IsError
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	responses := runRequests(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client"}}}`,
		`{"jsonrpc":"2.0","method":"initialized"}`,
	)
	require.Len(t, responses, 1)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	assert.Equal(t, MCPVersion, result.ProtocolVersion)
	assert.Equal(t, ServerName, result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
	assert.NotNil(t, result.Capabilities.Tools)
	assert.True(t, srv.initialized)
}

func TestListTools(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	responses := runRequests(t, srv, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Len(t, responses, 1)

	var result ListToolsResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	require.Len(t, result.Tools, 2)
	assert.Equal(t, "manual_search", result.Tools[0].Name)
	assert.Equal(t, "manual_ask", result.Tools[1].Name)
	assert.Contains(t, result.Tools[0].InputSchema.Required, "question")
	assert.Contains(t, result.Tools[1].InputSchema.Required, "question")
}

func TestUnknownMethod(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	responses := runRequests(t, srv, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeMethodNotFound, responses[0].Error.Code)
}

func TestParseError(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	responses := runRequests(t, srv, `{not json`)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeParse, responses[0].Error.Code)
}

func TestPing(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	responses := runRequests(t, srv, `{"jsonrpc":"2.0","id":4,"method":"ping"}`)
	require.Len(t, responses, 1)
	assert.Nil(t, responses[0].Error)
}

func TestToolSearch(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	req := `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"manual_search","arguments":{"question":"how do I mirror"}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "mirror.txt")
	assert.Contains(t, text, "The mirror modifier duplicates geometry.")
	assert.NotContains(t, text, "compositor.txt")
}

func TestToolSearchMissingQuestion(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	req := `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"manual_search","arguments":{}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.True(t, isError)
	assert.Contains(t, text, "question is required")
}

func TestToolSearchNoResults(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	req := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"manual_search","arguments":{"question":"unrelated topic"}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "No relevant passages found.")
}

func TestToolAsk(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{fragments: []string{"Use the ", "mirror modifier."}})

	req := `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"manual_ask","arguments":{"question":"how do I mirror"}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "Use the mirror modifier.")
	assert.Contains(t, text, "Sources:")
	assert.Contains(t, text, "mirror.txt")
}

func TestToolAskNoResults(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"should not appear"}}
	srv := newTestServer(t, gen)

	req := `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"manual_ask","arguments":{"question":"unrelated topic"}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, _ := callToolText(t, responses[0])
	assert.Contains(t, text, answer.NoResultsMessage)
	assert.NotContains(t, text, "should not appear")
}

func TestUnknownTool(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	req := `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"manual_delete","arguments":{}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.True(t, isError)
	assert.Contains(t, text, "Unknown tool")
}

func TestSearchLimit(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	// Both chunks match a diagonal query; limit trims to one
	srv.retriever = retrievalWithDiagonal(t)
	req := `{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"manual_search","arguments":{"question":"diagonal","limit":1}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.False(t, isError)
	assert.Contains(t, text, "Found 1 relevant passages")
}

func TestSearchSnippetTruncation(t *testing.T) {
	srv := newTestServer(t, &stubGenerator{})

	// Multibyte content longer than the snippet limit must be cut on a
	// rune boundary
	long := strings.Repeat("文", snippetLimit+100)
	flat := index.NewFlat(2)
	require.NoError(t, flat.Add([][]float32{{1, 0}}))

	dir := t.TempDir()
	require.NoError(t, flat.WriteFile(filepath.Join(dir, index.VectorsFile)))
	chunks := fmt.Sprintf(`[{"content":%q,"source":"long.txt"}]`, long)
	require.NoError(t, os.WriteFile(filepath.Join(dir, index.ChunksFile), []byte(chunks), 0o644))

	emb := &stubEmbedder{vectors: map[string][]float32{"long": {1, 0}}}
	srv.retriever = retrieval.New(index.NewLoader(dir, "flat"), emb, retrieval.Options{TopK: 10, Threshold: 0.5})

	req := `{"jsonrpc":"2.0","id":12,"method":"tools/call","params":{"name":"manual_search","arguments":{"question":"long"}}}`
	responses := runRequests(t, srv, req)
	require.Len(t, responses, 1)

	text, isError := callToolText(t, responses[0])
	assert.False(t, isError)
	assert.True(t, utf8.ValidString(text))
	assert.Contains(t, text, strings.Repeat("文", snippetLimit)+"...")
	assert.NotContains(t, text, strings.Repeat("文", snippetLimit+1))
}

// retrievalWithDiagonal builds a retriever whose "diagonal" query matches
// both indexed chunks.
func retrievalWithDiagonal(t *testing.T) *retrieval.Retriever {
	t.Helper()

	flat := index.NewFlat(2)
	vectors := [][]float32{{1, 0}, {0, 1}}
	require.NoError(t, flat.Add(vectors))

	dir := t.TempDir()
	require.NoError(t, flat.WriteFile(filepath.Join(dir, index.VectorsFile)))
	chunks := `[{"content":"First passage.","source":"a.txt"},{"content":"Second passage.","source":"b.txt"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, index.ChunksFile), []byte(chunks), 0o644))

	diag := []float32{1, 1}
	index.Normalize(diag)
	emb := &stubEmbedder{vectors: map[string][]float32{"diagonal": diag}}
	return retrieval.New(index.NewLoader(dir, "flat"), emb, retrieval.Options{TopK: 10, Threshold: 0.5})
}
