package feeders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path string
	// Optional makes a missing file a no-op instead of an error.
	Optional bool
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the file over structure. Durations are written as strings,
// e.g. health_interval = "5s".
func (t TomlFeeder) Feed(structure any) error {
	if !isStructPointer(structure) {
		return fmt.Errorf("%w, got %T", ErrInvalidStructure, structure)
	}

	data, err := os.ReadFile(t.Path)
	if err != nil {
		if t.Optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrFileRead, err)
	}

	if _, err := toml.Decode(string(data), structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTomlDecode, t.Path, err)
	}
	return nil
}

// Describe names this source for loader reporting.
func (t TomlFeeder) Describe() (kind, location string) {
	return "toml", t.Path
}
