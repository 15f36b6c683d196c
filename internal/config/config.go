// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TargetConfig describes one system under test the driver connects to.
type TargetConfig struct {
	Name         string `yaml:"name"`
	BaseURL      string `yaml:"base_url"`
	Token        string `yaml:"token"`
	MQTTBroker   string `yaml:"mqtt_broker"`
	StopCommand  string `yaml:"stop_command"`
	StartCommand string `yaml:"start_command"`
	HealthURL    string `yaml:"health_url"`
}

// Config is the root driver configuration.
type Config struct {
	Targets          []TargetConfig `yaml:"targets"`
	Speed            float64        `yaml:"speed"`
	Chapter          string         `yaml:"chapter"`
	ScenarioPath     string         `yaml:"scenario_path"`
	SunsetAutomation string         `yaml:"sunset_automation"`
}

// Load loads YAML config, validates it against a CUE schema, and applies
// environment overrides (DRIVER_SPEED, DRIVER_CHAPTER).
func Load(configPath, cueSchemaPath string) (*Config, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if env := os.Getenv("DRIVER_SPEED"); env != "" {
		v, err := strconv.ParseFloat(env, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DRIVER_SPEED: %w", err)
		}
		cfg.Speed = v
	}
	if env := os.Getenv("DRIVER_CHAPTER"); env != "" {
		cfg.Chapter = env
	}

	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.SunsetAutomation == "" {
		cfg.SunsetAutomation = "automation.sunset_lights"
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", configPath)
	}

	return &cfg, nil
}
