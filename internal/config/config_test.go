package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	// Given: a config built from defaults
	cfg := NewConfig()

	// Then: it validates cleanly
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 10, cfg.Indexing.CheckpointInterval)
	assert.Equal(t, 5000, cfg.Indexing.DailyUnitLimit)
	assert.Equal(t, "remote", cfg.Vector.Mode)
	assert.Equal(t, "http", cfg.Embedding.Provider)
	assert.Contains(t, cfg.Paths.Extensions, ".go")
	assert.Contains(t, cfg.Paths.Exclude, "**/.repovec/**")
}

func TestLoad_NoProjectConfigUsesDefaults(t *testing.T) {
	// Given: an empty project directory
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))

	// When: loading
	cfg, err := Load(dir)

	// Then: defaults apply
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Indexing.DailyUnitLimit)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	// Given: a project with a .repovec.yaml
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))

	yaml := `
version: 1
indexing:
  daily_unit_limit: 250
  checkpoint_interval: 5
vector:
  endpoint: http://vectors.internal:6333
  collection: myproject
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".repovec.yaml"), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: project values win, untouched values keep defaults
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Indexing.DailyUnitLimit)
	assert.Equal(t, 5, cfg.Indexing.CheckpointInterval)
	assert.Equal(t, "http://vectors.internal:6333", cfg.Vector.Endpoint)
	assert.Equal(t, "myproject", cfg.Vector.Collection)
	assert.Equal(t, 8, cfg.Indexing.EstimatedChunksPerFile)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	// Given: a project config and a conflicting env var
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))

	yaml := "indexing:\n  daily_unit_limit: 250\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".repovec.yaml"), []byte(yaml), 0o644))
	t.Setenv("REPOVEC_DAILY_UNIT_LIMIT", "99")

	// When: loading
	cfg, err := Load(dir)

	// Then: the env value wins
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.Indexing.DailyUnitLimit)
}

func TestLoad_UserConfigAppliesBeforeProject(t *testing.T) {
	// Given: a user config and a project config touching different keys
	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "repovec"), 0o755))
	userYAML := "embedding:\n  endpoint: http://user-host:11434\n"
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "repovec", "config.yaml"), []byte(userYAML), 0o644))

	projYAML := "indexing:\n  daily_unit_limit: 123\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".repovec.yaml"), []byte(projYAML), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: both layers apply
	require.NoError(t, err)
	assert.Equal(t, "http://user-host:11434", cfg.Embedding.Endpoint)
	assert.Equal(t, 123, cfg.Indexing.DailyUnitLimit)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".repovec.yaml"), []byte("{{not yaml"), 0o644))

	_, err := Load(dir)

	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero checkpoint interval", func(c *Config) { c.Indexing.CheckpointInterval = 0 }},
		{"zero daily limit", func(c *Config) { c.Indexing.DailyUnitLimit = 0 }},
		{"bad debounce", func(c *Config) { c.Indexing.WatchDebounce = "not-a-duration" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "carrier-pigeon" }},
		{"unknown vector mode", func(c *Config) { c.Vector.Mode = "blockchain" }},
		{"weights not summing to 1", func(c *Config) { c.Search.KeywordWeight = 0.9; c.Search.SemanticWeight = 0.9 }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "telepathy" }},
		{"unknown log level", func(c *Config) { c.Server.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMergeWith_ExcludesAppendToDefaults(t *testing.T) {
	// Given: a project config adding an exclude pattern
	cfg := NewConfig()
	other := &Config{Paths: PathsConfig{Exclude: []string{"**/generated/**"}}}

	// When: merging
	cfg.mergeWith(other)

	// Then: defaults are kept and the new pattern is appended
	assert.Contains(t, cfg.Paths.Exclude, "**/.git/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/generated/**")
}

func TestDebounceWindow_ParsesConfiguredValue(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexing.WatchDebounce = "250ms"

	assert.Equal(t, 250*time.Millisecond, cfg.DebounceWindow())
}

func TestCollectionName_DerivesFromProjectRoot(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "repovec-myrepo", cfg.CollectionName("/home/dev/MyRepo"))

	cfg.Vector.Collection = "explicit"
	assert.Equal(t, "explicit", cfg.CollectionName("/home/dev/MyRepo"))
}

func TestFindProjectRoot_WalksUpToGitDir(t *testing.T) {
	// Given: a nested directory under a .git root
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "internal", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	// When: finding the root from the nested dir
	found, err := FindProjectRoot(nested)

	// Then: the .git root is returned
	require.NoError(t, err)
	// Resolve symlinks, macOS tempdirs live under /private
	expected, _ := filepath.EvalSymlinks(root)
	actual, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, expected, actual)
}

func TestFindProjectRoot_StopsAtRepovecYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".repovec.yaml"), []byte("version: 1\n"), 0o644))
	nested := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := FindProjectRoot(nested)

	require.NoError(t, err)
	expected, _ := filepath.EvalSymlinks(root)
	actual, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, expected, actual)
}

func TestDetectProjectType_ByMarkerFiles(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, ProjectTypeUnknown, DetectProjectType(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte(""), 0o644))
	assert.Equal(t, ProjectTypePython, DetectProjectType(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))
	assert.Equal(t, ProjectTypeNode, DetectProjectType(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x"), 0o644))
	assert.Equal(t, ProjectTypeGo, DetectProjectType(dir))
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	// Given: a config with non-default values
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-user-config"))
	cfg := NewConfig()
	cfg.Indexing.DailyUnitLimit = 777

	// When: writing it as the project config and loading it back
	path := filepath.Join(dir, ".repovec.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)

	// Then: the value survives
	require.NoError(t, err)
	assert.Equal(t, 777, loaded.Indexing.DailyUnitLimit)
}
