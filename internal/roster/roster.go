package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

var (
	ErrDuplicateID = errors.New("user id already exists")
	ErrNotFound    = errors.New("user not found")
	ErrEmptyID     = errors.New("user id required")
)

// Profile is a registered user. It never changes after registration.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	ScanToken   string `json:"qr_data"`
}

// ScanToken derives the token printed on a user's code.
func ScanToken(id string) string {
	return "USER_" + id
}

// Store keeps the roster in memory and rewrites the roster file on every
// registration.
type Store struct {
	mu    sync.RWMutex
	path  string
	users map[string]Profile
}

// Open loads the roster at path. A missing file is an empty roster.
func Open(path string) (*Store, error) {
	s := &Store{path: path, users: map[string]Profile{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.users); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", path, err)
	}
	// A literal null decodes to a nil map.
	if s.users == nil {
		s.users = map[string]Profile{}
	}
	for id, p := range s.users {
		if p.ID == "" {
			p.ID = id
		}
		if p.ScanToken == "" {
			p.ScanToken = ScanToken(id)
		}
		s.users[id] = p
	}
	return s, nil
}

func (s *Store) Register(id, displayName string) (Profile, error) {
	if id == "" {
		return Profile{}, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	p := Profile{ID: id, DisplayName: displayName, ScanToken: ScanToken(id)}
	s.users[id] = p
	if err := s.save(); err != nil {
		delete(s.users, id)
		return Profile{}, fmt.Errorf("save roster: %w", err)
	}
	return p, nil
}

func (s *Store) Lookup(id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

// List returns every profile ordered by id.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.users))
	for _, p := range s.users {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// save rewrites the whole file. Caller holds s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
