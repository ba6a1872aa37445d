package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectFile marks a project root and holds its settings.
	ProjectFile = ".fitconfig"
	// SnapshotDir holds the snapshot repository inside a project root.
	SnapshotDir = ".fitlog"

	DefaultLogDirName = "logs"
)

// ProjectSettings is the content of a .fitconfig file.
type ProjectSettings struct {
	LogSettings struct {
		DefaultLogDir string `yaml:"default_log_dir"`
	} `yaml:"log_settings"`
}

// LoadProjectFile reads root/.fitconfig. Both `log_settings.default_log_dir`
// and a flat `default_log_dir` are accepted.
func LoadProjectFile(root string) (*ProjectSettings, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, ProjectFile))
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ProjectFile, err)
	}

	s := &ProjectSettings{}
	s.LogSettings.DefaultLogDir = v.GetString("log_settings.default_log_dir")
	if s.LogSettings.DefaultLogDir == "" {
		s.LogSettings.DefaultLogDir = v.GetString("default_log_dir")
	}
	return s, nil
}

// WriteDefaultProjectFile creates root/.fitconfig unless it already exists.
func WriteDefaultProjectFile(root string) (bool, error) {
	path := filepath.Join(root, ProjectFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	s := ProjectSettings{}
	s.LogSettings.DefaultLogDir = DefaultLogDirName
	data, err := yaml.Marshal(&s)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", ProjectFile, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// ProjectConfig supplies default log directories. A project root's
// .fitconfig is read once and cached; Fallback applies when no root is
// known or the file names no directory.
type ProjectConfig struct {
	Fallback string
	cache    map[string]string
}

func NewProjectConfig(fallback string) *ProjectConfig {
	return &ProjectConfig{Fallback: fallback, cache: map[string]string{}}
}

// DefaultLogDir returns "" when nothing is configured. Relative directories
// from .fitconfig are resolved against root.
func (p *ProjectConfig) DefaultLogDir(root string) (string, error) {
	if root == "" {
		return p.Fallback, nil
	}
	if dir, ok := p.cache[root]; ok {
		return dir, nil
	}

	s, err := LoadProjectFile(root)
	if err != nil {
		return "", err
	}
	dir := s.LogSettings.DefaultLogDir
	if dir == "" {
		dir = p.Fallback
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	if p.cache == nil {
		p.cache = map[string]string{}
	}
	p.cache[root] = dir
	return dir, nil
}
