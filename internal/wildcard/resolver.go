package wildcard

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"promptforge/internal/core/domain"
)

// DefaultMaxDepth bounds nested expansion. A set whose items reference the
// set itself, directly or transitively, runs into this bound instead of
// looping forever.
const DefaultMaxDepth = 10

var tokenRe = regexp.MustCompile(`__([a-zA-Z0-9][a-zA-Z0-9_-]*?)__`)

// Options control a single resolution pass.
type Options struct {
	Mode domain.ResolutionMode

	// MaxDepth overrides DefaultMaxDepth when > 0.
	MaxDepth int

	// AllowMissing leaves tokens without a matching set literal instead of
	// failing. Off by default; preview/diagnostic tooling opts in.
	AllowMissing bool

	// Commit records usage for every selected item, in selection order.
	// Without it all bookkeeping goes to a shadow and the store stays
	// untouched.
	Commit bool
}

// Resolver expands __name__ tokens inside a prompt into concrete text.
type Resolver struct {
	store *Store
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve expands every token in template. Preview resolutions get a fresh
// shadow, so two Resolve calls with identical input are independent.
func (r *Resolver) Resolve(template string, opts Options) (string, error) {
	return r.ResolveWith(template, opts, NewShadow())
}

// ResolveWith is Resolve with a caller-held shadow, letting a preview batch
// share bookkeeping across several resolutions.
func (r *Resolver) ResolveWith(template string, opts Options, shadow *Shadow) (string, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Iterative expansion with an explicit work list: fragments are
	// processed left to right, substituted text one nesting level deeper
	// than the text it replaces.
	type fragment struct {
		text  string
		depth int
	}

	var out strings.Builder
	stack := []fragment{{template, 0}}

	for len(stack) > 0 {
		frag := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		loc := tokenRe.FindStringSubmatchIndex(frag.text)
		if loc == nil {
			out.WriteString(frag.text)
			continue
		}

		name := frag.text[loc[2]:loc[3]]
		if frag.depth >= maxDepth {
			return "", fmt.Errorf("%w: __%s__ at depth %d", domain.ErrRecursionLimit, name, frag.depth)
		}

		out.WriteString(frag.text[:loc[0]])
		rest := frag.text[loc[1]:]

		item, err := r.store.select1(name, opts.Mode, opts.Commit, shadow)
		if err != nil {
			if opts.AllowMissing && errors.Is(err, domain.ErrWildcardNotFound) {
				out.WriteString(frag.text[loc[0]:loc[1]])
				stack = append(stack, fragment{rest, frag.depth})
				continue
			}
			return "", err
		}

		// Push rest first so the selection resolves before the text after it.
		stack = append(stack, fragment{rest, frag.depth})
		stack = append(stack, fragment{item, frag.depth + 1})
	}

	return out.String(), nil
}

// HasTokens reports whether the template references any wildcard set.
func HasTokens(template string) bool {
	return tokenRe.MatchString(template)
}
