package wildcard

import (
	"fmt"

	"promptforge/internal/core/domain"
)

// BatchGenerator turns a template config into concrete prompts, one
// resolution per slot.
type BatchGenerator struct {
	resolver *Resolver
}

func NewBatchGenerator(store *Store) *BatchGenerator {
	return &BatchGenerator{resolver: NewResolver(store)}
}

// Preview resolves count prompts without mutating usage state. Selections
// within the batch share a shadow, so sequential and smart-cycle modes still
// advance inside the preview; two Preview calls in a row give the same
// result as long as nothing commits in between.
func (g *BatchGenerator) Preview(tpl *domain.TemplateConfig, count int, allowMissing bool) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("preview count must be positive, got %d", count)
	}
	if !tpl.Wildcards.Enabled {
		return repeatLiteral(tpl.PromptTemplate, count), nil
	}

	opts := Options{
		Mode:         tpl.Wildcards.Mode,
		AllowMissing: allowMissing,
	}
	shadow := NewShadow()

	prompts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p, err := g.resolver.ResolveWith(tpl.PromptTemplate, opts, shadow)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// GenerateOne resolves a single prompt in commit mode, recording usage for
// every selected item.
func (g *BatchGenerator) GenerateOne(tpl *domain.TemplateConfig) (string, error) {
	if !tpl.Wildcards.Enabled {
		return tpl.PromptTemplate, nil
	}
	return g.resolver.Resolve(tpl.PromptTemplate, Options{
		Mode:   tpl.Wildcards.Mode,
		Commit: true,
	})
}

// Generate resolves batchSize*numBatches prompts in commit mode, in slot
// order. On failure it returns the prompts resolved so far together with the
// error, so callers can keep jobs already created from earlier slots.
func (g *BatchGenerator) Generate(tpl *domain.TemplateConfig, batchSize, numBatches int) ([]string, error) {
	if batchSize <= 0 || numBatches <= 0 {
		return nil, fmt.Errorf("batch dimensions must be positive, got %dx%d", batchSize, numBatches)
	}

	total := batchSize * numBatches
	prompts := make([]string, 0, total)
	for i := 0; i < total; i++ {
		p, err := g.GenerateOne(tpl)
		if err != nil {
			return prompts, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

func repeatLiteral(prompt string, count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = prompt
	}
	return out
}
