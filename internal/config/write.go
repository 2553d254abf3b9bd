package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

// WriteConfig serializes the given Config and writes it to path: TOML when
// path ends in .toml, YAML otherwise.
func WriteConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	content := "# ontograph configuration\n" + string(data)
	return os.WriteFile(path, []byte(content), 0644)
}
