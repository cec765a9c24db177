package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 0.2, cfg.TestFraction)
	assert.Equal(t, "basin", cfg.Linear.ClusterBy)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainer.yaml")
	doc := `
seed: 99
test_fraction: 0.3
bagging:
  num_trees: 50
  workers: 2
boosting:
  learning_rate: 0.1
linear:
  log_response: false
  interactions:
    - [surface, length_km]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, 0.3, cfg.TestFraction)
	assert.Equal(t, 50, cfg.Bagging.NumTrees)
	assert.Equal(t, 2, cfg.Bagging.Workers)
	assert.Equal(t, 0.1, cfg.Boosting.LearningRate)
	assert.False(t, cfg.Linear.LogResponse)
	require.Len(t, cfg.Linear.Interactions, 1)
	assert.Equal(t, [2]string{"surface", "length_km"}, cfg.Linear.Interactions[0])

	// Sections the file does not touch keep their defaults.
	assert.Equal(t, 0.01, cfg.Tree.Cp)
	assert.Equal(t, "data/worksites.csv", cfg.DataPath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: [not an int"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
