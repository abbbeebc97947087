package worldmeta

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	in := Meta{Seed: -9007199254740993, Generator: "noise", SeaLevel: 48, GameTime: 1200}
	if err := Save(dir, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, FileName+".tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Seed != in.Seed || got.Generator != "noise" || got.GameTime != 1200 || got.Version != CurrentVersion {
		t.Fatalf("got %+v", got)
	}
	if got.SavedAt == "" {
		t.Fatalf("SavedAt not set")
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(t.TempDir()); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing seed":   `{"version":1,"generator":"flat","gametime":0,"saved_at":"2024-01-01T00:00:00Z"}`,
		"bad generator":  `{"version":1,"seed":1,"generator":"caves","gametime":0,"saved_at":"2024-01-01T00:00:00Z"}`,
		"negative time":  `{"version":1,"seed":1,"generator":"flat","gametime":-1,"saved_at":"2024-01-01T00:00:00Z"}`,
		"bad date":       `{"version":1,"seed":1,"generator":"flat","gametime":0,"saved_at":"yesterday"}`,
		"unknown field":  `{"version":1,"seed":1,"generator":"flat","gametime":0,"saved_at":"2024-01-01T00:00:00Z","x":1}`,
		"future version": `{"version":2,"seed":1,"generator":"flat","gametime":0,"saved_at":"2024-01-01T00:00:00Z"}`,
		"not json":       `{`,
	}
	for name, raw := range cases {
		if err := Validate([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	ok := `{"version":1,"seed":1,"generator":"flat","gametime":0,"saved_at":"2024-01-01T00:00:00Z"}`
	if err := Validate([]byte(ok)); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
}
