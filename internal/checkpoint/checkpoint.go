// Package checkpoint provides keyed, resumable state persistence for long
// runs. A checkpoint is bound to a fingerprint of the run parameters; loading
// with a different fingerprint yields nothing, so stale state from another
// configuration is never resumed.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/oxidize/pkg/persist"
)

// ErrKeyMismatch reports a checkpoint written under different run parameters.
var ErrKeyMismatch = errors.New("checkpoint bound to different run parameters")

// Key derives a stable fingerprint from the run parameters. params must
// marshal deterministically; use a struct, not a map with varying key order.
func Key(params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint checkpoint params: %w", err)
	}

	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:]), nil
}

// envelope wraps the persisted state with its binding key.
type envelope[T any] struct {
	Key       string `json:"key"`
	Timestamp string `json:"timestamp"`
	State     T      `json:"state"`
}

// Store persists one state value at a fixed path under a fixed key.
type Store[T any] struct {
	path string
	key  string

	// interval is how many units of progress between saves. Values below
	// one mean save on every Tick.
	interval int
	pending  int
}

// NewStore creates a store writing to path, bound to key. interval controls
// how often Tick actually persists.
func NewStore[T any](path, key string, interval int) *Store[T] {
	if interval < 1 {
		interval = 1
	}

	return &Store[T]{path: path, key: key, interval: interval}
}

// Load returns the persisted state when a checkpoint exists and its key
// matches. A missing file or a foreign key yields ok=false with no error;
// only genuine read or decode failures are reported.
func (s *Store[T]) Load() (state T, ok bool, err error) {
	var env envelope[T]

	err = persist.LoadJSON(s.path, &env)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return state, false, nil
		}

		return state, false, err
	}

	if env.Key != s.key {
		return state, false, nil
	}

	return env.State, true, nil
}

// LoadStrict is Load, except that a checkpoint bound to a foreign key is an
// ErrKeyMismatch error instead of an absent checkpoint. Use it on explicit
// resume, where silently discarding prior state would surprise the operator.
func (s *Store[T]) LoadStrict() (state T, ok bool, err error) {
	var env envelope[T]

	err = persist.LoadJSON(s.path, &env)
	if err != nil {
		if errors.Is(err, persist.ErrNotFound) {
			return state, false, nil
		}

		return state, false, err
	}

	if env.Key != s.key {
		return state, false, fmt.Errorf("%w: found %.12s, want %.12s", ErrKeyMismatch, env.Key, s.key)
	}

	return env.State, true, nil
}

// Save persists the state unconditionally, atomically replacing any previous
// checkpoint at the path.
func (s *Store[T]) Save(state T, timestamp string) error {
	env := envelope[T]{
		Key:       s.key,
		Timestamp: timestamp,
		State:     state,
	}

	err := persist.SaveJSON(s.path, &env)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	s.pending = 0

	return nil
}

// Tick records one unit of progress and persists when the save interval is
// reached. Call Save directly at run end to flush regardless of interval.
func (s *Store[T]) Tick(state T, timestamp string) error {
	s.pending++
	if s.pending < s.interval {
		return nil
	}

	return s.Save(state, timestamp)
}
