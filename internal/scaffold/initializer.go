// Package scaffold writes a starter tocsin.yml.
package scaffold

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/dyluth/tocsin/internal/config"
	"github.com/dyluth/tocsin/internal/printer"
)

//go:embed templates/tocsin.yml.tmpl
var configTemplate []byte

// Template returns the starter configuration.
func Template() []byte {
	return append([]byte(nil), configTemplate...)
}

// CheckExisting returns an error if a config file already exists at path.
func CheckExisting(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	return nil
}

// Initialize writes the starter configuration to path and checks that it
// loads. Unless force is set an existing file is left untouched.
func Initialize(path string, force bool) error {
	if !force {
		if err := CheckExisting(path); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, configTemplate, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return validateCreatedFile(path)
}

// validateCreatedFile loads the written file through the normal config path
func validateCreatedFile(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("created %s does not load: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("created %s is invalid: %w", path, err)
	}
	return nil
}

// PrintSuccess prints the success message with next steps
func PrintSuccess(path string) {
	printer.Success("Created %s\n", path)
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Pick a prefix unique to your application\n")
	printer.Info("  2. Choose a facility every participating process can reach\n")
	printer.Info("  3. Run 'tocsin listen <identifier>' in one shell and 'tocsin post <identifier>' in another\n")
}
