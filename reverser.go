package bworker

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Reverser keeps track of named patterns and allows building URLs.
type Reverser struct {
	pats map[string]*Pattern
}

// NewReverser inits the reverser.
func NewReverser() *Reverser {
	return &Reverser{make(map[string]*Pattern)}
}

// Reverse reverses the named pattern into a url.
func (r Reverser) Reverse(name string, vals ...string) (string, error) {
	pat, ok := r.pats[name]
	if !ok {
		names := lo.Keys(r.pats)
		slices.Sort(names)

		return "", errors.Newf("no pattern named: %q, got: %v", name, names)
	}

	res, err := pat.Build(vals...)
	if err != nil {
		return "", errors.Wrap(err, "failed to build")
	}

	return res, nil
}

// Named is a convenience method that panics if naming the pattern fails.
func (r Reverser) Named(name, str string) *Pattern {
	pat, err := r.NamedPattern(name, str)
	if err != nil {
		panic("bworker: " + err.Error())
	}

	return pat
}

// NamedPattern parses str as a route pattern and stores it under name.
func (r Reverser) NamedPattern(name, str string) (*Pattern, error) {
	if _, exists := r.pats[name]; exists {
		return nil, errors.Newf("pattern with name %q already exists", name)
	}

	pat, err := ParsePattern(str)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse pattern")
	}

	r.pats[name] = pat

	return pat, nil
}
