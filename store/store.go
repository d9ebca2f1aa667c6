// Package store persists the local vote set as a single JSON file. The
// whole set is rewritten on every mutation so an external UI process can
// always read a complete document. Two processes sharing one path are not
// coordinated: last writer wins.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("votingdapp:store")

// Vote is one record in the local set. IDs are unique within the store and
// assigned in increasing order; Public only ever transitions false -> true.
type Vote struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// Store reads and writes the vote file. A single mutex serializes every
// operation so concurrent Add/MarkPublic calls from response builders and
// UI commands cannot reintroduce a stale copy.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store backed by the file at path. The file is created on
// first write; a missing file reads as an empty set.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ReadAll returns the persisted vote set in insertion order. A missing
// file is an empty set, not an error.
func (s *Store) ReadAll() ([]Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// WriteAll overwrites the backing file with the given set.
func (s *Store) WriteAll(votes []Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(votes)
}

// Add appends a new private vote with the next free ID and persists the
// full set.
func (s *Store) Add(name string) (Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, err := s.readLocked()
	if err != nil {
		return Vote{}, err
	}

	var next uint64
	for _, v := range votes {
		if v.ID >= next {
			next = v.ID + 1
		}
	}

	vote := Vote{ID: next, Name: name, Public: false}
	votes = append(votes, vote)
	if err := s.writeLocked(votes); err != nil {
		return Vote{}, err
	}

	log.Debugw("added vote", "id", vote.ID, "name", vote.Name)
	return vote, nil
}

// MarkPublic flips the vote with the given ID to public and persists the
// full set. An unknown ID is a no-op, not an error.
func (s *Store) MarkPublic(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, err := s.readLocked()
	if err != nil {
		return err
	}

	for i := range votes {
		if votes[i].ID == id {
			votes[i].Public = true
		}
	}

	return s.writeLocked(votes)
}

// PublicVotes returns the public subset in store order.
func (s *Store) PublicVotes() ([]Vote, error) {
	all, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	return FilterPublic(all), nil
}

// FilterPublic returns the public subset of votes, preserving order.
func FilterPublic(votes []Vote) []Vote {
	public := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Public {
			public = append(public, v)
		}
	}
	return public
}

func (s *Store) readLocked() ([]Vote, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Vote{}, nil
		}
		return nil, fmt.Errorf("failed to read vote file %s: %w", s.path, err)
	}

	var votes []Vote
	if err := json.Unmarshal(data, &votes); err != nil {
		return nil, fmt.Errorf("failed to decode vote file %s: %w", s.path, err)
	}
	return votes, nil
}

func (s *Store) writeLocked(votes []Vote) error {
	data, err := json.Marshal(votes)
	if err != nil {
		return fmt.Errorf("failed to encode vote set: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write vote file %s: %w", s.path, err)
	}
	return nil
}
