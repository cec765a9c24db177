// Package config loads the trainer configuration from YAML, with defaults
// matching the harness comparison runs.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

type Tree struct {
	MaxDepth    int     `yaml:"max_depth"`
	MinLeafSize int     `yaml:"min_leaf_size"`
	Cp          float64 `yaml:"cp"`
	CVFolds     int     `yaml:"cv_folds"`
}

type Bagging struct {
	NumTrees         int `yaml:"num_trees"`
	FeaturesPerSplit int `yaml:"features_per_split"`
	MinLeafSize      int `yaml:"min_leaf_size"`
	Workers          int `yaml:"workers"`
}

type Boosting struct {
	NumTrees     int     `yaml:"num_trees"`
	LearningRate float64 `yaml:"learning_rate"`
	MaxDepth     int     `yaml:"max_depth"`
	MinLeafSize  int     `yaml:"min_leaf_size"`
	CVFolds      int     `yaml:"cv_folds"`
}

type Linear struct {
	LogResponse  bool        `yaml:"log_response"`
	ClusterBy    string      `yaml:"cluster_by"`
	Interactions [][2]string `yaml:"interactions"`
}

// Trainer is the full training-run configuration.
type Trainer struct {
	Seed         int64    `yaml:"seed"`
	TestFraction float64  `yaml:"test_fraction"`
	DataPath     string   `yaml:"data_path"`
	ModelDir     string   `yaml:"model_dir"`
	Tree         Tree     `yaml:"tree"`
	Bagging      Bagging  `yaml:"bagging"`
	Boosting     Boosting `yaml:"boosting"`
	Linear       Linear   `yaml:"linear"`
}

// Default returns the harness defaults.
func Default() Trainer {
	return Trainer{
		Seed:         1,
		TestFraction: 0.2,
		DataPath:     "data/worksites.csv",
		ModelDir:     "models",
		Tree:         Tree{MinLeafSize: 5, Cp: 0.01, CVFolds: 10},
		Bagging:      Bagging{NumTrees: 200, MinLeafSize: 5},
		Boosting:     Boosting{NumTrees: 200, LearningRate: 0.05, MaxDepth: 3, MinLeafSize: 5, CVFolds: 5},
		Linear:       Linear{LogResponse: true, ClusterBy: "basin"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Trainer, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
