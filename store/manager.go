package store

import "github.com/pkg/errors"

// Logical store file names (spec.md §4.5).
const (
	MinerCanon      = "miner_canon"
	MinerForks      = "miner_forks"
	MinerActive     = "miner_active"
	ValidatorFinal  = "validator_final"
	ValidatorActive = "validator_active"
	NodeState       = "node_state"
)

// Manager owns the six logical stores opened from subdirectories of a
// single data root, mirroring the teacher's single-struct Store that wraps
// one bbolt handle per concern.
type Manager struct {
	root            string
	minerCanon      *Store
	minerForks      *Store
	minerActive     *Store
	validatorFinal  *Store
	validatorActive *Store
	nodeState       *Store
}

// OpenManager opens (creating if absent) all six logical stores under dir.
func OpenManager(dir string) (*Manager, error) {
	m := &Manager{root: dir}
	var err error
	if m.minerCanon, err = Open(dir, MinerCanon); err != nil {
		return nil, errors.Wrap(err, MinerCanon)
	}
	if m.minerForks, err = Open(dir, MinerForks); err != nil {
		return nil, errors.Wrap(err, MinerForks)
	}
	if m.minerActive, err = Open(dir, MinerActive); err != nil {
		return nil, errors.Wrap(err, MinerActive)
	}
	if m.validatorFinal, err = Open(dir, ValidatorFinal); err != nil {
		return nil, errors.Wrap(err, ValidatorFinal)
	}
	if m.validatorActive, err = Open(dir, ValidatorActive); err != nil {
		return nil, errors.Wrap(err, ValidatorActive)
	}
	if m.nodeState, err = Open(dir, NodeState); err != nil {
		return nil, errors.Wrap(err, NodeState)
	}
	return m, nil
}

// OpenManagerInMemory opens all six stores under tmpDir, on disk like
// OpenManager; the caller picks and cleans up the directory.
func OpenManagerInMemory(tmpDir string) (*Manager, error) {
	return OpenManager(tmpDir)
}

func (m *Manager) MinerCanon() *Store      { return m.minerCanon }
func (m *Manager) MinerForks() *Store      { return m.minerForks }
func (m *Manager) MinerActive() *Store     { return m.minerActive }
func (m *Manager) ValidatorFinal() *Store  { return m.validatorFinal }
func (m *Manager) ValidatorActive() *Store { return m.validatorActive }
func (m *Manager) NodeState() *Store       { return m.nodeState }

// Close closes every logical store, returning the first error encountered
// while still attempting to close the rest.
func (m *Manager) Close() error {
	var firstErr error
	for _, s := range []*Store{m.minerCanon, m.minerForks, m.minerActive, m.validatorFinal, m.validatorActive, m.nodeState} {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
