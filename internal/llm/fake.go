package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a scriptable Client for tests. Each call pops the next queued
// response; an empty queue or a queued error is returned as a call failure.
type FakeClient struct {
	mu        sync.Mutex
	responses []fakeResponse
	// Calls records every prompt seen, in order.
	Calls []string
	// Handler, when set, overrides the queued responses entirely.
	Handler func(prompt string, opts Options) (*Response, error)
}

type fakeResponse struct {
	text string
	err  error
}

// NewFakeClient returns a FakeClient that replies with the given texts in
// order.
func NewFakeClient(texts ...string) *FakeClient {
	c := &FakeClient{}
	for _, t := range texts {
		c.responses = append(c.responses, fakeResponse{text: t})
	}
	return c
}

// QueueResponse appends a successful response.
func (c *FakeClient) QueueResponse(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, fakeResponse{text: text})
}

// QueueError appends a failing call.
func (c *FakeClient) QueueError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, fakeResponse{err: err})
}

// CallCount returns the number of Generate calls made.
func (c *FakeClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Generate implements Client.
func (c *FakeClient) Generate(ctx context.Context, prompt string, opts Options) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.Calls = append(c.Calls, prompt)
	handler := c.Handler
	var next *fakeResponse
	if handler == nil && len(c.responses) > 0 {
		next = &c.responses[0]
		c.responses = c.responses[1:]
	}
	c.mu.Unlock()

	if handler != nil {
		return handler(prompt, opts)
	}
	if next == nil {
		return nil, fmt.Errorf("fake client: no response queued")
	}
	if next.err != nil {
		return nil, next.err
	}
	text := next.text
	if opts.JSONResponse {
		text = CleanJSONBlock(text)
	}
	return &Response{Text: text, Usage: Usage{Input: len(prompt) / 4, Output: len(text) / 4}}, nil
}

// Close implements Client.
func (c *FakeClient) Close() error { return nil }
