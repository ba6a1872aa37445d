// Package parser decodes parameter and bulk metric files into Value trees.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imishinist/fitlog/internal/models"
)

// ParseParamsFile reads a JSON or YAML parameters file, chosen by extension.
func ParseParamsFile(path string) (*models.Map, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSONParams(file)
	case ".yaml", ".yml":
		return ParseYAMLParams(file)
	default:
		return nil, unsupported(ext)
	}
}

// ParseMetricsFile reads a JSON or YAML metrics file, chosen by extension.
func ParseMetricsFile(path string) (*models.MetricsFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseJSONMetrics(file)
	case ".yaml", ".yml":
		return ParseYAMLMetrics(file)
	default:
		return nil, unsupported(ext)
	}
}

func unsupported(ext string) error {
	return fmt.Errorf("unsupported file format: %s (supported: .json, .yaml, .yml)", ext)
}
