// Package worldmeta reads and writes the world.json sidecar kept next to the
// superchunk files.
package worldmeta

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	FileName       = "world.json"
	CurrentVersion = 1
)

type Meta struct {
	Version       int    `json:"version"`
	Seed          int64  `json:"seed"`
	Generator     string `json:"generator"`
	SeaLevel      int    `json:"sea_level,omitempty"`
	GameTime      uint64 `json:"gametime"`
	SavedAt       string `json:"saved_at"`
	PaletteDigest string `json:"palette_digest,omitempty"`
}

//go:embed world.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		if err := c.AddResource(FileName, bytes.NewReader([]byte(schemaJSON))); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(FileName)
	})
	return schema, schemaErr
}

// Validate checks raw world.json bytes against the embedded schema.
func Validate(raw []byte) error {
	s, err := compiled()
	if err != nil {
		return fmt.Errorf("world schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("world.json: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("world.json: %w", err)
	}
	return nil
}

// Load reads dir/world.json. A missing file returns an error satisfying
// os.IsNotExist.
func Load(dir string) (Meta, error) {
	var m Meta
	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return m, err
	}
	if err := Validate(raw); err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("world.json: %w", err)
	}
	return m, nil
}

// Save rewrites dir/world.json atomically.
func Save(dir string, m Meta) error {
	if m.Version == 0 {
		m.Version = CurrentVersion
	}
	if m.SavedAt == "" {
		m.SavedAt = time.Now().UTC().Format(time.RFC3339)
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := Validate(raw); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
