package answer

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/kwhuang/manualqa/internal/llm"
	"github.com/kwhuang/manualqa/internal/retrieval"
)

// NoResultsMessage is streamed verbatim when retrieval finds nothing relevant.
const NoResultsMessage = "I couldn't find anything relevant in the manual for that question. Try rephrasing it, or check that the index has been built."

// errorPrefix introduces the single diagnostic fragment emitted when the
// generation backend fails.
const errorPrefix = "Something went wrong while answering: "

// Orchestrator answers questions by retrieving relevant chunks, assembling a
// prompt, and streaming the generated answer.
type Orchestrator struct {
	retriever *retrieval.Retriever
	prompts   *llm.PromptBuilder
	generator llm.Generator
	defaults  llm.GenerateOptions
}

// New creates an Orchestrator. defaults supplies the model and context
// length used when the caller does not override the model.
func New(retriever *retrieval.Retriever, prompts *llm.PromptBuilder, generator llm.Generator, defaults llm.GenerateOptions) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		prompts:   prompts,
		generator: generator,
		defaults:  defaults,
	}
}

// Ask answers the question as a stream of fragments. The stream always
// produces at least one fragment: the answer, a fixed no-results message, or
// a single diagnostic when generation fails. Retrieval or generation failures
// are surfaced in the stream rather than returned, so callers can always
// render something.
func (o *Orchestrator) Ask(ctx context.Context, question, model string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)

	go func() {
		defer close(s.fragments)
		defer cancel()

		results, err := o.retriever.Retrieve(ctx, question)
		if err != nil {
			log.Error("Retrieval failed", "error", err)
			s.setErr(err)
			s.send(ctx, NoResultsMessage)
			return
		}

		if len(results) == 0 {
			log.Debug("No relevant chunks found", "question", question)
			s.send(ctx, NoResultsMessage)
			return
		}

		s.setSources(results)

		opts := o.defaults
		if model != "" {
			opts.Model = model
		}

		prompt := o.prompts.Build(question, results)
		log.Debug("Prompt assembled", "documents", len(results), "bytes", len(prompt))

		contentCh, errCh := o.generator.Stream(ctx, prompt, opts)
		for fragment := range contentCh {
			if !s.send(ctx, fragment) {
				return
			}
		}

		if err := <-errCh; err != nil {
			log.Error("Generation failed", "error", err)
			s.setErr(err)
			s.send(ctx, errorPrefix+err.Error())
		}
	}()

	return s
}
