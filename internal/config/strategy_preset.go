package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveStrategy dumps a strategy preset. The format follows the file
// extension: .json, or .yml/.yaml.
func SaveStrategy(path string, s Strategy) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.MarshalIndent(s, "", "  ")
	case ".yml", ".yaml":
		data, err = yaml.Marshal(s)
	default:
		return fmt.Errorf("unsupported preset format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode strategy preset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write strategy preset: %w", err)
	}
	return nil
}

// LoadStrategy reads a preset written by SaveStrategy. Fields missing from
// the file keep their value in base.
func LoadStrategy(path string, base Strategy) (Strategy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read strategy preset: %w", err)
	}

	s := base
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &s)
	case ".yml", ".yaml":
		err = yaml.Unmarshal(data, &s)
	default:
		return base, fmt.Errorf("unsupported preset format %q", ext)
	}
	if err != nil {
		return base, fmt.Errorf("failed to decode strategy preset %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return base, fmt.Errorf("invalid strategy preset %s: %w", path, err)
	}
	return s, nil
}
