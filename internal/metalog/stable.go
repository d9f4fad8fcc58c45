package metalog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hashicorp/raft"
)

// Keys hashicorp/raft writes through its StableStore.
const (
	KeyCurrentTerm  = "CurrentTerm"
	KeyLastVoteCand = "LastVoteCand"
)

// ErrKeyNotFound is returned for keys never written. The message matches
// what raft's own stores return so raft treats it as "unset".
var ErrKeyNotFound = errors.New("not found")

// StableStore adapts a Store to raft.StableStore.
//
// CurrentTerm maps to current_term and LastVoteCand to voted_for; every
// other key lands in RaftState.Extra. Uint64 values in Extra are encoded
// big-endian, as raft-boltdb does.
type StableStore struct {
	s *Store
}

var _ raft.StableStore = (*StableStore)(nil)

// StableStore returns the raft.StableStore view of s.
func (s *Store) StableStore() *StableStore {
	return &StableStore{s: s}
}

// Set stores val under key.
func (st *StableStore) Set(key []byte, val []byte) error {
	k := string(key)
	switch k {
	case KeyCurrentTerm:
		if len(val) != 8 {
			return fmt.Errorf("stable store: %s must be 8 bytes, got %d", k, len(val))
		}
		_, err := st.s.SetState(StatePatch{CurrentTerm: Ptr(binary.BigEndian.Uint64(val))})
		return err
	case KeyLastVoteCand:
		_, err := st.s.SetState(StatePatch{VotedFor: Ptr(string(val))})
		return err
	}
	return st.s.setExtra(k, append([]byte(nil), val...))
}

// Get returns the value stored under key.
func (st *StableStore) Get(key []byte) ([]byte, error) {
	k := string(key)
	state := st.s.State()
	switch k {
	case KeyCurrentTerm:
		return binary.BigEndian.AppendUint64(nil, state.CurrentTerm), nil
	case KeyLastVoteCand:
		return []byte(state.VotedFor), nil
	}
	v, ok := state.Extra[k]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

// SetUint64 stores an integer under key.
func (st *StableStore) SetUint64(key []byte, val uint64) error {
	if string(key) == KeyCurrentTerm {
		_, err := st.s.SetState(StatePatch{CurrentTerm: Ptr(val)})
		return err
	}
	return st.Set(key, binary.BigEndian.AppendUint64(nil, val))
}

// GetUint64 returns the integer stored under key.
func (st *StableStore) GetUint64(key []byte) (uint64, error) {
	if string(key) == KeyCurrentTerm {
		return st.s.State().CurrentTerm, nil
	}
	v, err := st.Get(key)
	if err != nil {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("stable store: %s is not a uint64", key)
	}
	return binary.BigEndian.Uint64(v), nil
}

// setExtra persists one Extra key.
func (s *Store) setExtra(key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if next.Extra == nil {
		next.Extra = make(map[string][]byte)
	}
	next.Extra[key] = val
	return s.persistLocked(next)
}
