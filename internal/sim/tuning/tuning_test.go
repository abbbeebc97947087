package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Generator != "noise" || tu.GeneratorWorkers != 4 || tu.ViewRadius != 6 {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
	if tu.SaveInterval().Seconds() != 30 {
		t.Fatalf("save interval: %v", tu.SaveInterval())
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("generator: flat\nseed: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := Defaults()
	if tu.Generator != "flat" || tu.Seed != 7 || tu.ViewRadius != d.ViewRadius {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
}

func TestValidate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := []func(*Tuning){
		func(t *Tuning) { t.Generator = "caves" },
		func(t *Tuning) { t.GeneratorWorkers = 0 },
		func(t *Tuning) { t.ViewRadius = 0 },
		func(t *Tuning) { t.ViewRadius = 12; t.MaxSubscriptions = 100 },
		func(t *Tuning) { t.SaveIntervalSec = 0 },
		func(t *Tuning) { t.SeaLevel = 200 },
		func(t *Tuning) { t.RateLimits.SetBlockBurst = 0 },
	}
	for i, mut := range bad {
		tu := Defaults()
		mut(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
