package bworker

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Next continues the chain and returns the downstream response.
type Next func() (*Response, error)

// Middleware for cross-cutting concerns. A middleware either returns a response without calling
// next, which short-circuits the chain, or calls next and returns its (possibly modified)
// result. Middleware run in registration order, post-processing unwinds in reverse.
type Middleware[E Environment] func(c *Context[E], next Next) (*Response, error)

// entry is a registered middleware. A nil pattern matches every path, an empty method every
// method.
type entry[E Environment] struct {
	pattern *Pattern
	method  string
	mw      Middleware[E]
}

func (e entry[E]) matches(r *http.Request) bool {
	if e.method != "" && e.method != r.Method {
		return false
	}

	if e.pattern == nil {
		return true
	}

	_, ok := e.pattern.MatchRequest(r)

	return ok
}

// chain runs the steps of a single request. The cursor is advanced before a step is invoked so
// repeated calls to next move forward and never run a step twice.
type chain[E Environment] struct {
	c      *Context[E]
	steps  []Middleware[E]
	cursor int
	failed error
}

// runChain executes the participating middleware followed by the terminal step. Once any step
// fails the recorded error is final, whatever the outer middleware return.
func runChain[E Environment](c *Context[E], entries []entry[E], terminal Middleware[E]) (*Response, error) {
	ch := &chain[E]{c: c, steps: make([]Middleware[E], 0, len(entries)+1)}
	for _, e := range entries {
		if e.matches(c.Request) {
			ch.steps = append(ch.steps, e.mw)
		}
	}

	ch.steps = append(ch.steps, terminal)

	resp, err := ch.next()
	if ch.failed != nil {
		return nil, ch.failed
	}

	return resp, err
}

func (ch *chain[E]) next() (*Response, error) {
	if ch.failed != nil {
		return nil, ch.failed
	}

	if ch.cursor >= len(ch.steps) {
		ch.failed = ErrChainExhausted
		return nil, ch.failed
	}

	step := ch.steps[ch.cursor]
	ch.cursor++

	resp, err := ch.invoke(step)
	if err == nil && resp == nil {
		err = errNoResponse
	}

	if err != nil {
		if ch.failed == nil {
			ch.failed = err
		}

		return nil, ch.failed
	}

	return resp, nil
}

func (ch *chain[E]) invoke(step Middleware[E]) (resp *Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			if perr, ok := v.(error); ok {
				resp, err = nil, errors.Wrap(perr, "panic")
				return
			}

			resp, err = nil, errors.Newf("panic: %v", v)
		}
	}()

	return step(ch.c, ch.next)
}

func normalizeMethod(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
