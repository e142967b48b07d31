// ABOUTME: Persisted weighted prompt list
// ABOUTME: JSON file keyed by prompt id, rewritten on every mutation
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Prompt is one steering prompt as the user sees it.
type Prompt struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Color  string  `json:"color"`
}

// palette is cycled for new prompts.
var palette = []string{
	"#9900ff", "#5200ff", "#ff25f6", "#2af6de",
	"#ffdd28", "#3dffab", "#d8ff3e", "#d9b2ff",
}

// Store holds the prompt list and mirrors every mutation to disk.
type Store struct {
	mu      sync.Mutex
	path    string
	prompts []Prompt
	nextHue int
}

// NewStore loads the prompt list from path, starting empty if the file
// does not exist yet.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt store: %w", err)
	}

	if err := json.Unmarshal(data, &s.prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompt store: %w", err)
	}
	s.nextHue = len(s.prompts)

	return s, nil
}

// All returns a copy of the prompt list.
func (s *Store) All() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts...)
}

// Add creates a prompt with the next palette color and persists.
func (s *Store) Add(text string, weight float64) (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Prompt{
		ID:     uuid.New().String(),
		Text:   text,
		Weight: weight,
		Color:  palette[s.nextHue%len(palette)],
	}
	s.nextHue++
	s.prompts = append(s.prompts, p)

	return p, s.saveLocked()
}

// SetWeight updates a prompt's weight and persists.
func (s *Store) SetWeight(id string, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.prompts {
		if s.prompts[i].ID == id {
			s.prompts[i].Weight = weight
			return s.saveLocked()
		}
	}
	return fmt.Errorf("unknown prompt id %s", id)
}

// SetText updates a prompt's text and persists.
func (s *Store) SetText(id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.prompts {
		if s.prompts[i].ID == id {
			s.prompts[i].Text = text
			return s.saveLocked()
		}
	}
	return fmt.Errorf("unknown prompt id %s", id)
}

// Remove deletes a prompt and persists.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.prompts {
		if s.prompts[i].ID == id {
			s.prompts = append(s.prompts[:i], s.prompts[i+1:]...)
			return s.saveLocked()
		}
	}
	return fmt.Errorf("unknown prompt id %s", id)
}

// saveLocked rewrites the whole file. The list is small; atomicity via a
// temp file rename matters more than incremental writes.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode prompt store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create prompt store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write prompt store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
