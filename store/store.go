package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidecore/histedit/utils"
)

// FileName is the on-disk name of the state file under the repo's
// metadata directory (spec §6 "Persisted files").
const FileName = "histedit-state"

// ErrCorrupt wraps any decode failure — truncation, bad magic, or an
// unsupported version.
var ErrCorrupt = errors.New("corrupt histedit state")

// ErrNoState is returned by Read when no state file exists.
var ErrNoState = errors.New("no histedit state")

// Store persists State under a single metadata directory.
type Store struct {
	dir string
}

// New returns a Store rooted at metadataDir (the value the Repo
// collaborator returns from SJoin("")).
func New(metadataDir string) *Store {
	return &Store{dir: metadataDir}
}

func (s *Store) path() string { return filepath.Join(s.dir, FileName) }

// Path returns the on-disk location of the state file, for callers (e.g.
// a status command) that report on it without decoding it.
func (s *Store) Path() string { return s.path() }

// Exists reports whether an edit is currently in progress. A zero-length
// state file (e.g. left behind by a crash between create and write) does
// not count — Read would only fail it with ErrCorrupt anyway.
func (s *Store) Exists() bool {
	return utils.ValidFile(s.path())
}

// Write persists state atomically (temp file + fsync + rename).
func (s *Store) Write(state State) error {
	data := Encode(state)
	if err := utils.AtomicWriteFile(s.path(), data, 0o640); err != nil {
		return fmt.Errorf("write histedit state: %w", err)
	}
	return nil
}

// Read loads the persisted state, or ErrNoState if none exists.
func (s *Store) Read() (State, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNoState
		}
		return State{}, fmt.Errorf("read histedit state: %w", err)
	}
	state, err := Decode(data)
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// Remove deletes the state file, tolerating its absence.
func (s *Store) Remove() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove histedit state: %w", err)
	}
	return nil
}
