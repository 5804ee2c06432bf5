package configstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"promptforge/internal/core/domain"
	"promptforge/internal/core/logger"
	"promptforge/internal/core/ports"
)

// Store loads template configs from TOML files in a directory, one template
// per file, named after the file. Files are parsed and validated once at
// startup; a broken file is skipped with a warning rather than taking the
// whole store down.
type Store struct {
	mu         sync.RWMutex
	dir        string
	maxRetries int // applied when a template omits max_retries
	templates  map[string]domain.TemplateConfig
}

// templateFile is the on-disk shape. Kept separate from the domain type so
// file-format concerns stay at this boundary. MaxRetries is a pointer to
// tell "omitted" apart from an explicit zero.
type templateFile struct {
	PromptTemplate string                  `toml:"prompt_template"`
	NegativePrompt string                  `toml:"negative_prompt"`
	Priority       int                     `toml:"priority"`
	MaxRetries     *int                    `toml:"max_retries"`
	Wildcards      domain.WildcardSettings `toml:"wildcards"`
	Params         domain.GenerationParams `toml:"params"`
}

var _ ports.ConfigStore = (*Store)(nil)

func NewStore(dir string, defaultMaxRetries int) (*Store, error) {
	s := &Store{
		dir:        dir,
		maxRetries: defaultMaxRetries,
		templates:  make(map[string]domain.TemplateConfig),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every template file in the directory. Existing entries for
// deleted files are dropped.
func (s *Store) Reload() error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.toml"))
	if err != nil {
		return err
	}

	fresh := make(map[string]domain.TemplateConfig, len(paths))
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".toml")
		tpl, err := s.loadTemplate(name, path)
		if err != nil {
			logger.Warn("skipping template config", "file", path, "error", err)
			continue
		}
		fresh[name] = *tpl
	}

	s.mu.Lock()
	s.templates = fresh
	s.mu.Unlock()

	logger.Info("template configs loaded", "dir", s.dir, "count", len(fresh))
	return nil
}

func (s *Store) loadTemplate(name, path string) (*domain.TemplateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file templateFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	maxRetries := s.maxRetries
	if file.MaxRetries != nil {
		maxRetries = *file.MaxRetries
	}

	tpl := domain.TemplateConfig{
		Name:           name,
		PromptTemplate: file.PromptTemplate,
		NegativePrompt: file.NegativePrompt,
		Wildcards:      file.Wildcards,
		Params:         file.Params,
		Priority:       file.Priority,
		MaxRetries:     maxRetries,
	}
	if err := validate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func validate(tpl *domain.TemplateConfig) error {
	if strings.TrimSpace(tpl.PromptTemplate) == "" {
		return fmt.Errorf("template %q: prompt_template is empty", tpl.Name)
	}
	if tpl.Wildcards.Mode == "" {
		tpl.Wildcards.Mode = domain.ModeRandom
	}
	if !tpl.Wildcards.Mode.Valid() {
		return fmt.Errorf("template %q: unknown wildcard mode %q", tpl.Name, tpl.Wildcards.Mode)
	}
	if tpl.Wildcards.CycleLength < 0 {
		return fmt.Errorf("template %q: cycle_length must not be negative", tpl.Name)
	}
	if tpl.MaxRetries < 0 {
		return fmt.Errorf("template %q: max_retries must not be negative", tpl.Name)
	}
	if tpl.Params.Width < 0 || tpl.Params.Height < 0 {
		return fmt.Errorf("template %q: dimensions must not be negative", tpl.Name)
	}
	return nil
}

// Get returns a copy of the named template.
func (s *Store) Get(name string) (*domain.TemplateConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	out := tpl
	return &out, nil
}

// Names returns the loaded template names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
