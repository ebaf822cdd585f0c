package driver

import (
	"errors"
	"sort"
	"strconv"

	"github.com/Sumatoshi-tech/oxidize/pkg/metadir"
	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
	"github.com/Sumatoshi-tech/oxidize/pkg/symbols"
)

// Progress tracks which units are done, persisted as progress.json.
// Map keys are decimal unit ids; JSON objects cannot carry int keys.
type Progress struct {
	// Current is the id of the unit in flight, zero between units.
	Current int `json:"current"`

	// Converted lists committed unit ids in commit order.
	Converted []int `json:"converted"`

	// ConvertedCommits maps unit id to the commit that made it good.
	ConvertedCommits map[string]string `json:"converted_commits"`

	UpdatedAt string `json:"updated_at"`
}

// ParkedUnit records a unit that exhausted its fix attempts.
type ParkedUnit struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
	ParkedAt string `json:"parked_at"`
}

// RunState is the cross-run resume state, persisted as run_state.json.
type RunState struct {
	// LastGoodCommit is the newest commit at which the crate built.
	LastGoodCommit string `json:"last_good_commit"`

	// Parked lists units waiting for manual or later attention.
	Parked []ParkedUnit `json:"parked"`

	// Attempts counts full restarts per unit id across runs.
	Attempts map[string]int `json:"attempts"`

	UpdatedAt string `json:"updated_at"`
}

func newProgress() *Progress {
	return &Progress{ConvertedCommits: make(map[string]string)}
}

func newRunState() *RunState {
	return &RunState{Attempts: make(map[string]int)}
}

// LoadProgress reads progress.json under root; missing means a fresh start.
func LoadProgress(root string) (*Progress, error) {
	p := newProgress()

	err := persist.LoadJSON(metadir.Path(root, metadir.ProgressFile), p)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return newProgress(), nil
		}

		return nil, err
	}

	if p.ConvertedCommits == nil {
		p.ConvertedCommits = make(map[string]string)
	}

	return p, nil
}

// Save persists the progress atomically.
func (p *Progress) Save(root string) error {
	p.UpdatedAt = symbols.Now()

	return persist.SaveJSON(metadir.Path(root, metadir.ProgressFile), p)
}

// IsConverted reports whether the unit was already committed.
func (p *Progress) IsConverted(id int) bool {
	_, ok := p.ConvertedCommits[strconv.Itoa(id)]
	if ok {
		return true
	}

	for _, done := range p.Converted {
		if done == id {
			return true
		}
	}

	return false
}

// MarkConverted records a committed unit and the commit that captured it.
func (p *Progress) MarkConverted(id int, commit string) {
	if !p.IsConverted(id) {
		p.Converted = append(p.Converted, id)
	}

	if commit != "" {
		p.ConvertedCommits[strconv.Itoa(id)] = commit
	}

	p.Current = 0
}

// LoadRunState reads run_state.json under root; missing means a fresh run.
func LoadRunState(root string) (*RunState, error) {
	rs := newRunState()

	err := persist.LoadJSON(metadir.Path(root, metadir.RunStateFile), rs)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return newRunState(), nil
		}

		return nil, err
	}

	if rs.Attempts == nil {
		rs.Attempts = make(map[string]int)
	}

	return rs, nil
}

// Save persists the run state atomically.
func (rs *RunState) Save(root string) error {
	rs.UpdatedAt = symbols.Now()

	return persist.SaveJSON(metadir.Path(root, metadir.RunStateFile), rs)
}

// AttemptCount returns how many full restarts the unit has consumed.
func (rs *RunState) AttemptCount(id int) int {
	return rs.Attempts[strconv.Itoa(id)]
}

// Park records a failed unit with its reason, bumping the restart counter and
// replacing any earlier parking entry for the same id.
func (rs *RunState) Park(id int, name, reason string) {
	key := strconv.Itoa(id)
	rs.Attempts[key]++

	kept := rs.Parked[:0]

	for _, unit := range rs.Parked {
		if unit.ID != id {
			kept = append(kept, unit)
		}
	}

	rs.Parked = append(kept, ParkedUnit{
		ID:       id,
		Name:     name,
		Reason:   reason,
		Attempts: rs.Attempts[key],
		ParkedAt: symbols.Now(),
	})
}

// Unpark removes a unit from the parked list, keeping its attempt count.
func (rs *RunState) Unpark(id int) {
	kept := rs.Parked[:0]

	for _, unit := range rs.Parked {
		if unit.ID != id {
			kept = append(kept, unit)
		}
	}

	rs.Parked = kept
}

// ParkedIDs returns the parked unit ids in ascending order.
func (rs *RunState) ParkedIDs() []int {
	ids := make([]int, 0, len(rs.Parked))
	for _, unit := range rs.Parked {
		ids = append(ids, unit.ID)
	}

	sort.Ints(ids)

	return ids
}
