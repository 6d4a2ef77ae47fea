// Package corpus holds the static documentation set the assistant answers from.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammad-safakhou/supportbot/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrEmpty        = errors.New("corpus: no documentation entries")
	ErrInvalidEntry = errors.New("corpus: entry has neither title nor content")
)

// Corpus is an immutable, ordered set of documentation entries.
type Corpus struct {
	entries []models.DocEntry
}

// New validates entries and returns a corpus owning a private copy of them.
func New(entries []models.DocEntry) (*Corpus, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	cp := make([]models.DocEntry, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Content) == "" {
			return nil, fmt.Errorf("%w (index %d)", ErrInvalidEntry, i)
		}
		cp[i] = e
	}
	return &Corpus{entries: cp}, nil
}

// Load reads a JSON or YAML documentation file.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}
	var entries []models.DocEntry
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	case ".json", "":
		err = json.Unmarshal(data, &entries)
	default:
		return nil, fmt.Errorf("corpus: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
	}
	return New(entries)
}

// Entries returns a copy of the entries in corpus order.
func (c *Corpus) Entries() []models.DocEntry {
	out := make([]models.DocEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Corpus) Len() int { return len(c.entries) }

// At returns the i-th entry.
func (c *Corpus) At(i int) models.DocEntry { return c.entries[i] }
