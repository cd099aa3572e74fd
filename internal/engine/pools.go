package engine

import (
	"fmt"
	"io/fs"
	"math/rand/v2"
	"sort"

	"github.com/roach88/socialstories/internal/script"
)

// Response pool names used by the engine.
const (
	PoolCorrect           = "CORRECT_RESPONSES"
	PoolIncorrect         = "INCORRECT_RESPONSES"
	PoolYes               = "YES_RESPONSES"
	PoolNo                = "NO_RESPONSES"
	PoolAnswerFeedback    = "ANSWER_FEEDBACK"
	PoolStoryIntros       = "STORY_INTROS"
	PoolStoryClosings     = "STORY_CLOSINGS"
	PoolTimeoutClosings   = "TIMEOUT_CLOSINGS"
	PoolMaxStoriesReached = "MAX_STORIES_REACHED"
)

var knownPools = []string{
	PoolCorrect,
	PoolIncorrect,
	PoolYes,
	PoolNo,
	PoolAnswerFeedback,
	PoolStoryIntros,
	PoolStoryClosings,
	PoolTimeoutClosings,
	PoolMaxStoriesReached,
}

// canonicalPool maps an ADD argument onto a known pool name.
//
// Exact names win. Under MatchContains the longest contained known name is
// used, so "INCORRECT_RESPONSES" never lands in CORRECT_RESPONSES. Anything
// else is stored under its own name.
func canonicalPool(field string, mode script.MatchMode) string {
	for _, name := range knownPools {
		if field == name {
			return name
		}
	}
	if mode == script.MatchExact {
		return field
	}
	best := ""
	for _, name := range knownPools {
		if script.Matches(field, name, mode) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return field
	}
	return best
}

// Pools holds named response pools loaded by ADD lines.
type Pools struct {
	entries map[string][]string
}

// NewPools creates an empty pool store.
func NewPools() *Pools {
	return &Pools{entries: make(map[string][]string)}
}

// Load reads file from fsys into the named pool, replacing any previous
// contents. On error the previous contents are kept.
func (p *Pools) Load(fsys fs.FS, name, file string) (int, error) {
	lines, err := script.ReadLines(fsys, file)
	if err != nil {
		return 0, err
	}
	p.entries[name] = lines
	return len(lines), nil
}

// Entries returns a copy of a pool's contents.
func (p *Pools) Entries(name string) []string {
	return append([]string(nil), p.entries[name]...)
}

// Names returns the loaded pool names in sorted order.
func (p *Pools) Names() []string {
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pick returns a uniformly random entry. An unloaded or empty pool is a
// missing-configuration error.
func (p *Pools) Pick(name string, rng *rand.Rand) (string, error) {
	entries := p.entries[name]
	if len(entries) == 0 {
		return "", newRuntimeError(ErrCodeMissingConfiguration,
			fmt.Sprintf("response pool %s is not loaded", name), nil)
	}
	return entries[rng.IntN(len(entries))], nil
}
