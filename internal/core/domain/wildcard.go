package domain

// ResolutionMode selects how one item is picked from a wildcard set.
type ResolutionMode string

const (
	ModeRandom     ResolutionMode = "random"
	ModeSequential ResolutionMode = "sequential"
	ModeSmartCycle ResolutionMode = "smart_cycle"
)

func (m ResolutionMode) Valid() bool {
	switch m {
	case ModeRandom, ModeSequential, ModeSmartCycle:
		return true
	}
	return false
}

// WildcardSettings is the per-template wildcard configuration.
type WildcardSettings struct {
	Enabled        bool           `json:"enabled" toml:"enabled"`
	Mode           ResolutionMode `json:"mode" toml:"mode"`
	CycleLength    int            `json:"cycle_length" toml:"cycle_length"`
	ShuffleOnReset bool           `json:"shuffle_on_reset" toml:"shuffle_on_reset"`
}

// TemplateConfig is one named entry from the config store, validated at the
// store boundary before it enters the core.
type TemplateConfig struct {
	Name           string           `json:"name"`
	PromptTemplate string           `json:"prompt_template"`
	NegativePrompt string           `json:"negative_prompt"`
	Wildcards      WildcardSettings `json:"wildcards"`
	Params         GenerationParams `json:"params"`
	Priority       int              `json:"priority"`
	MaxRetries     int              `json:"max_retries"`
}

// ItemUsage is one row of a wildcard usage report.
type ItemUsage struct {
	Item    string  `json:"item"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}
