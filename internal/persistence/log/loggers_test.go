package log

import (
	"path/filepath"
	"testing"
	"time"

	"voxelcore.ai/internal/sim/world"
)

func TestEditLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	for i := 0; i < 5; i++ {
		if err := l.WriteEdit(world.EditEntry{GameTime: uint64(i), Session: "s", Pos: [3]int{i, 0, 64}, To: 3}); err != nil {
			t.Fatalf("WriteEdit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := EditFiles(dir)
	if err != nil {
		t.Fatalf("EditFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	got, err := ReadEdits(files[0])
	if err != nil {
		t.Fatalf("ReadEdits: %v", err)
	}
	if len(got) != 5 || got[4].Pos[0] != 4 || got[4].To != 3 {
		t.Fatalf("unexpected entries %+v", got)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "edits")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(world.EditEntry{GameTime: 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(world.EditEntry{GameTime: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{
		filepath.Join(dir, "edits-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "edits-2026-03-01-11.jsonl.zst"),
	}
	for i, p := range want {
		got, err := ReadEdits(p)
		if err != nil {
			t.Fatalf("ReadEdits %s: %v", p, err)
		}
		if len(got) != 1 || got[0].GameTime != uint64(i+1) {
			t.Fatalf("%s: %+v", p, got)
		}
	}
}
