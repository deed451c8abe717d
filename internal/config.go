package internal

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/gramvault/gramvault/internal/api"
	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
	"github.com/gramvault/gramvault/internal/ffmpeg"
	"github.com/gramvault/gramvault/internal/importer"
	"github.com/gramvault/gramvault/internal/metadata"
)

// GramVaultConfig is the top-level user configuration, read from a YAML
// file and overridable via environment variables.
type GramVaultConfig struct {
	Rest     api.RestConfig          `yaml:"api"`
	Database database.DatabaseConfig `yaml:"database" env-required:"true"`
	Import   importer.Config         `yaml:"import" env-required:"true"`
	Library  catalog.LibraryConfig   `yaml:"media_library"`
	Ffmpeg   ffmpeg.Config           `yaml:"ffmpeg"`
	Metadata metadata.Config         `yaml:"metadata"`
}

// LoadFromFile populates the config from the YAML file at the given path
// (plus the environment), then validates the result.
func (config *GramVaultConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	return nil
}
