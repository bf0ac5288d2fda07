package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Define struct for YAML
type ScenarioConfig struct {
	Scenarios map[string]Scenario `yaml:"scenarios"`
}

type Scenario struct {
	Days            int     `yaml:"days"`
	R0              float64 `yaml:"r0"`
	MortalityProb   float64 `yaml:"mortality_prob"`
	ObservationProb float64 `yaml:"observation_prob"`
	InflowRate      float64 `yaml:"inflow_rate"`
}

// GetScenario looks up a named preset in a YAML scenario file. Returns nil
// if the file has no scenario of that name.
func GetScenario(scenarioFilePath string, name string) *Scenario {
	// Read YAML file
	data, err := os.ReadFile(scenarioFilePath)
	if err != nil {
		logrus.Fatalf("Could not read scenario file %s: %v", scenarioFilePath, err)
	}

	// Parse YAML
	var cfg ScenarioConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Fatalf("Could not parse scenario file %s: %v", scenarioFilePath, err)
	}

	if s, ok := cfg.Scenarios[name]; ok {
		return &s
	}
	return nil
}
