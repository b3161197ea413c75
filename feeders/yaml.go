package feeders

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
	// Optional makes a missing file a no-op instead of an error.
	Optional bool
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the file over structure; keys absent from the file keep
// their current values.
func (y YamlFeeder) Feed(structure any) error {
	if !isStructPointer(structure) {
		return fmt.Errorf("%w, got %T", ErrInvalidStructure, structure)
	}

	data, err := os.ReadFile(y.Path)
	if err != nil {
		if y.Optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrFileRead, err)
	}

	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrYamlDecode, y.Path, err)
	}
	return nil
}

// Describe names this source for loader reporting.
func (y YamlFeeder) Describe() (kind, location string) {
	return "yaml", y.Path
}

func isStructPointer(structure any) bool {
	t := reflect.TypeOf(structure)
	return t != nil && t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct &&
		!reflect.ValueOf(structure).IsNil()
}
