package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion uint16 `yaml:"protocol_version"`

	Seed             int64  `yaml:"seed"`
	Generator        string `yaml:"generator"`
	GeneratorWorkers int    `yaml:"generator_workers"`
	SeaLevel         int    `yaml:"sea_level"`

	ViewRadius         int `yaml:"view_radius"`
	MaxSubscriptions   int `yaml:"max_subscriptions"`
	SaveIntervalSec    int `yaml:"save_interval_sec"`
	SuperchunkCacheMax int `yaml:"superchunk_cache_max"`
	TickRateHz         int `yaml:"tick_rate_hz"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type RateLimits struct {
	SetBlockPerSec  float64 `yaml:"set_block_per_sec"`
	SetBlockBurst   int     `yaml:"set_block_burst"`
	SubscribePerSec float64 `yaml:"subscribe_per_sec"`
	SubscribeBurst  int     `yaml:"subscribe_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    1,
		Seed:               1337,
		Generator:          "noise",
		GeneratorWorkers:   4,
		SeaLevel:           48,
		ViewRadius:         6,
		MaxSubscriptions:   512,
		SaveIntervalSec:    30,
		SuperchunkCacheMax: 64,
		TickRateHz:         20,
		RateLimits: RateLimits{
			SetBlockPerSec:  20,
			SetBlockBurst:   40,
			SubscribePerSec: 8,
			SubscribeBurst:  16,
		},
	}
}

// Load reads a tuning file on top of Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch t.Generator {
	case "flat", "noise":
	default:
		return fmt.Errorf("unknown generator %q", t.Generator)
	}
	if t.GeneratorWorkers <= 0 {
		return fmt.Errorf("generator_workers must be > 0")
	}
	if t.ViewRadius < 1 || t.ViewRadius > 32 {
		return fmt.Errorf("view_radius %d out of range 1..32", t.ViewRadius)
	}
	if side := 2*t.ViewRadius + 1; t.MaxSubscriptions < side*side {
		return fmt.Errorf("max_subscriptions %d smaller than view square %d", t.MaxSubscriptions, side*side)
	}
	if t.SaveIntervalSec <= 0 {
		return fmt.Errorf("save_interval_sec must be > 0")
	}
	if t.SuperchunkCacheMax <= 0 {
		return fmt.Errorf("superchunk_cache_max must be > 0")
	}
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.SeaLevel < 0 || t.SeaLevel >= 128 {
		return fmt.Errorf("sea_level %d out of range", t.SeaLevel)
	}
	if t.RateLimits.SetBlockPerSec <= 0 || t.RateLimits.SetBlockBurst <= 0 {
		return fmt.Errorf("rate_limits.set_block must be > 0")
	}
	if t.RateLimits.SubscribePerSec <= 0 || t.RateLimits.SubscribeBurst <= 0 {
		return fmt.Errorf("rate_limits.subscribe must be > 0")
	}
	return nil
}

func (t Tuning) SaveInterval() time.Duration {
	return time.Duration(t.SaveIntervalSec) * time.Second
}

func (t Tuning) TickDuration() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}
