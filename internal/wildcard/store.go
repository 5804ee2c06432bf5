package wildcard

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"promptforge/internal/core/domain"
)

// Store loads named wildcard sets from a directory of plain-text files and
// tracks per-item usage. One file per set: <dir>/<name>.txt, one item per
// line; blank lines and lines starting with '#' are skipped. Items are
// immutable after load except via Reload.
//
// All state is guarded by a single mutex. Both queue submitters and the
// scheduler resolve prompts, but resolution is not on a hot path.
type Store struct {
	mu   sync.Mutex
	dir  string
	sets map[string]*set
}

type set struct {
	items []string       // canonical order from the source file
	order []int          // selection order, indexes into items; reshuffled on reset
	usage map[string]int // item -> resolutions since last reset
	cycle int            // position for sequential mode
}

func NewStore(dir string) *Store {
	return &Store{
		dir:  dir,
		sets: make(map[string]*set),
	}
}

// Load reads the named set from disk, replacing any cached copy and
// resetting its usage state.
func (s *Store) Load(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load(name)
	return err
}

// Items returns the canonical item list of the named set.
func (s *Store) Items(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ensure(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(st.items))
	copy(out, st.items)
	return out, nil
}

// Usage returns the usage count of a single item.
func (s *Store) Usage(name, item string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ensure(name)
	if err != nil {
		return 0, err
	}
	return st.usage[item], nil
}

// RecordUsage increments the usage counter of an item. Visible to all
// subsequent resolutions.
func (s *Store) RecordUsage(name, item string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ensure(name)
	if err != nil {
		return err
	}
	st.usage[item]++
	return nil
}

// Reset zeroes all usage counts and the cycle position of the named set.
// When shuffle is true the selection order is reshuffled; the canonical
// item list is untouched.
func (s *Store) Reset(name string, shuffle bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ensure(name)
	if err != nil {
		return err
	}
	st.usage = make(map[string]int, len(st.items))
	st.cycle = 0
	if shuffle {
		rand.Shuffle(len(st.order), func(i, j int) {
			st.order[i], st.order[j] = st.order[j], st.order[i]
		})
	}
	return nil
}

// ListUsage reports per-item usage, least-used items first. Percent is the
// item's share of all resolutions since the last reset.
func (s *Store) ListUsage(name string) ([]domain.ItemUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.ensure(name)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, c := range st.usage {
		total += c
	}

	out := make([]domain.ItemUsage, 0, len(st.items))
	for _, item := range st.items {
		u := domain.ItemUsage{Item: item, Count: st.usage[item]}
		if total > 0 {
			u.Percent = float64(u.Count) / float64(total) * 100
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count < out[j].Count
	})
	return out, nil
}

// Names lists the sets available on disk.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read wildcard dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(names)
	return names, nil
}

// select1 picks one item per the resolution mode. In commit mode the usage
// counter and cycle position mutate in place; otherwise all mutations land
// in the shadow so previews never touch store state. Callers must hold s.mu.
func (s *Store) select1(name string, mode domain.ResolutionMode, commit bool, shadow *Shadow) (string, error) {
	st, err := s.ensure(name)
	if err != nil {
		return "", err
	}
	if len(st.items) == 0 {
		return "", fmt.Errorf("%w: %s", domain.ErrEmptyWildcardSet, name)
	}

	var item string
	switch mode {
	case domain.ModeSequential:
		cycle := st.cycle
		if !commit {
			cycle = shadow.cyclePos(name, st.cycle)
		}
		item = st.items[st.order[cycle%len(st.order)]]
		if commit {
			st.cycle = (cycle + 1) % len(st.order)
		} else {
			shadow.setCycle(name, (cycle+1)%len(st.order))
		}

	case domain.ModeSmartCycle:
		// Least-used first; ties broken by position in the selection order.
		best := -1
		bestCount := 0
		for _, idx := range st.order {
			candidate := st.items[idx]
			count := st.usage[candidate]
			if !commit {
				count += shadow.extraUsage(name, candidate)
			}
			if best == -1 || count < bestCount {
				best = idx
				bestCount = count
			}
		}
		item = st.items[best]

	default: // random
		item = st.items[rand.IntN(len(st.items))]
	}

	if commit {
		st.usage[item]++
	} else {
		shadow.recordUsage(name, item)
	}
	return item, nil
}

// ensure returns the cached set, loading it on first access.
// Callers must hold s.mu.
func (s *Store) ensure(name string) (*set, error) {
	if st, ok := s.sets[name]; ok {
		return st, nil
	}
	return s.load(name)
}

func (s *Store) load(name string) (*set, error) {
	path := filepath.Join(s.dir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrWildcardNotFound, name)
		}
		return nil, fmt.Errorf("failed to read wildcard set %s: %w", name, err)
	}

	var items []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}

	st := &set{
		items: items,
		order: order,
		usage: make(map[string]int, len(items)),
	}
	s.sets[name] = st
	return st, nil
}

// Shadow absorbs the usage and cycle mutations of a preview resolution so
// repeated previews are idempotent with respect to store state. One shadow
// spans a whole preview batch, so selections within the batch still vary.
type Shadow struct {
	usage map[string]map[string]int
	cycle map[string]int
}

func NewShadow() *Shadow {
	return &Shadow{
		usage: make(map[string]map[string]int),
		cycle: make(map[string]int),
	}
}

func (sh *Shadow) recordUsage(name, item string) {
	m, ok := sh.usage[name]
	if !ok {
		m = make(map[string]int)
		sh.usage[name] = m
	}
	m[item]++
}

func (sh *Shadow) extraUsage(name, item string) int {
	return sh.usage[name][item]
}

func (sh *Shadow) cyclePos(name string, base int) int {
	if pos, ok := sh.cycle[name]; ok {
		return pos
	}
	return base
}

func (sh *Shadow) setCycle(name string, pos int) {
	sh.cycle[name] = pos
}
