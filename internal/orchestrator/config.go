package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML file layer; any field present in the
// environment overrides the corresponding file value. This mirrors how
// teams.yaml seeds agent defaults that individual env vars can still
// override per deployment.
type FileConfig struct {
	Capacity CapacityConfig `yaml:"capacity"`
	Budget   BudgetConfig   `yaml:"budget"`
	Breaker  BreakerConfig  `yaml:"circuit_breaker"`
	Loop     LoopConfig     `yaml:"main_loop"`
}

// LoadFileConfig reads a YAML config file. A missing file is not an
// error — callers fall back to LoadConfig's env-only defaults.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Config is the fully-resolved configuration for one orchestrator
// instance: file values as a base, environment variables as override.
type Config struct {
	Capacity CapacityConfig
	Budget   BudgetConfig
	Breaker  BreakerConfig
	Loop     LoopConfig
}

// LoadConfig resolves a Config from an optional YAML file plus the
// documented environment variables, with env taking precedence whenever
// the corresponding variable is set. Only the file's capacity limits
// (opus/sonnet) and budget amounts (daily/weekly) are applied; its
// circuit_breaker and main_loop sections and budget hard-stop flag are
// ignored, and those fields come from the environment or defaults.
func LoadConfig(filePath string) (*Config, error) {
	file := &FileConfig{}
	if filePath != "" {
		loaded, err := LoadFileConfig(filePath)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	cfg := &Config{
		Capacity: CapacityConfigFromEnv(),
		Budget:   BudgetConfigFromEnv(),
		Breaker:  BreakerConfigFromEnv(),
		Loop:     LoopConfigFromEnv(),
	}

	if os.Getenv("OPUS_SESSION_LIMIT") == "" && file.Capacity.OpusLimit > 0 {
		cfg.Capacity.OpusLimit = file.Capacity.OpusLimit
	}
	if os.Getenv("SONNET_SESSION_LIMIT") == "" && file.Capacity.SonnetLimit > 0 {
		cfg.Capacity.SonnetLimit = file.Capacity.SonnetLimit
	}
	if os.Getenv("DAILY_BUDGET_USD") == "" && file.Budget.DailyUSD > 0 {
		cfg.Budget.DailyUSD = file.Budget.DailyUSD
	}
	if os.Getenv("WEEKLY_BUDGET_USD") == "" && file.Budget.WeeklyUSD > 0 {
		cfg.Budget.WeeklyUSD = file.Budget.WeeklyUSD
	}

	return cfg, nil
}
