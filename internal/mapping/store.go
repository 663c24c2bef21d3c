package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pgrekey/pgrekey/internal/config"
)

// DefaultStorePath is where column maps persist between runs.
const DefaultStorePath = "~/.pgrekey/mappings.json"

// Document is the persisted column-map store: one JSON object whose keys
// are pair keys ("<source-db>-><target-db>") and whose values are the
// column maps for that pair.
type Document map[string]TableMaps

// Store reads and writes the persisted column-map document.
type Store struct {
	Path string
}

// NewStore returns a store at the given path, or the default when empty.
func NewStore(path string) *Store {
	if path == "" {
		path = config.ExpandHome(DefaultStorePath)
	} else {
		path = config.ExpandHome(path)
	}
	return &Store{Path: path}
}

// Load reads the whole document. A missing or unreadable file yields an
// empty document; so does unparseable JSON. Losing a corrupt store beats
// refusing to run.
func (s *Store) Load() Document {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Document{}
	}
	doc := Document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}
	}
	return doc
}

// Get returns the column maps stored for a pair key, never nil.
func (s *Store) Get(pairKey string) TableMaps {
	doc := s.Load()
	if maps, ok := doc[pairKey]; ok {
		return maps
	}
	return TableMaps{}
}

// Set replaces the column maps for a pair key and writes the whole
// document back.
func (s *Store) Set(pairKey string, maps TableMaps) error {
	if err := maps.Validate(); err != nil {
		return err
	}
	doc := s.Load()
	doc[pairKey] = maps
	return s.write(doc)
}

// Delete removes a pair key from the document.
func (s *Store) Delete(pairKey string) error {
	doc := s.Load()
	if _, ok := doc[pairKey]; !ok {
		return nil
	}
	delete(doc, pairKey)
	return s.write(doc)
}

func (s *Store) write(doc Document) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling column maps: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("writing column maps: %w", err)
	}
	return nil
}
