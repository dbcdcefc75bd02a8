package crawler

import (
	"context"
	"log/slog"
	"time"

	"sitecrawl/pkg/crawl"
)

// parseJobInput is the parse job contract (§6): the fetched outcome plus
// the frozen-for-this-crawl actions and scope metadata.
type parseJobInput struct {
	outcome       crawl.Outcome
	actions       []crawl.Action
	extractor     crawl.Extractor
	baseURL       string
	baseURLSecure string
}

// parseResult carries the newly-discovered outbound link candidates for
// one source URL, or a ParseFailed error. Per §4.2, an action that panics
// is logged and the parse job still returns its link set.
type parseResult struct {
	sourceURL string
	links     []string
	err       error
}

// parseStage runs every registered action on a fetched document, extracts
// outbound links, and returns the discovered set. Worker count P =
// ceil(W*0.5) per §4.2 — intentionally narrower than the fetch stage.
type parseStage struct {
	pool     *completionPool[parseResult]
	counters *counters
	logger   *slog.Logger
}

func newParseStage(ctx context.Context, counters *counters, logger *slog.Logger, workers, doneBuffer int) (*parseStage, error) {
	pool, err := newCompletionPool[parseResult](ctx, workers, doneBuffer)
	if err != nil {
		return nil, err
	}
	return &parseStage{pool: pool, counters: counters, logger: logger}, nil
}

// submit adds a parse job and increments pagesScheduled on success, per
// §4.3 step 3.
func (ps *parseStage) submit(input parseJobInput) error {
	err := ps.pool.Submit(func(ctx context.Context) parseResult {
		return ps.run(ctx, input)
	})
	if err != nil {
		return err
	}
	ps.counters.pagesScheduled.Add(1)
	return nil
}

func (ps *parseStage) run(ctx context.Context, input parseJobInput) parseResult {
	ps.invokeActions(ctx, input)

	if input.outcome.Err != nil || input.outcome.Doc == nil {
		return parseResult{sourceURL: input.outcome.URL, err: input.outcome.Err}
	}

	links, err := input.extractor.ExtractLinks(input.outcome.Doc)
	if err != nil {
		ps.logger.Error("link extraction failed", "url", input.outcome.URL, "err", err)
		return parseResult{sourceURL: input.outcome.URL, err: &ParseFailed{URL: input.outcome.URL, Cause: err}}
	}
	return parseResult{sourceURL: input.outcome.URL, links: links}
}

// invokeActions runs every action, recovering from panics so a single
// misbehaving action cannot abort link discovery for the page (§4.2).
func (ps *parseStage) invokeActions(ctx context.Context, input parseJobInput) {
	for _, action := range input.actions {
		ps.invokeOne(ctx, action, input.outcome)
	}
}

func (ps *parseStage) invokeOne(ctx context.Context, action crawl.Action, outcome crawl.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			ps.logger.Error("action panicked", "url", outcome.URL, "panic", r)
		}
	}()
	action.Handle(ctx, outcome)
}

func (ps *parseStage) pollCompleted(timeout time.Duration) (parseResult, bool) {
	return ps.pool.PollCompleted(timeout)
}

func (ps *parseStage) close() {
	ps.pool.Close()
}
