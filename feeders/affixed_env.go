package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var durationType = reflect.TypeOf(time.Duration(0))

// AffixedEnvFeeder is a feeder that reads environment variables with a prefix and/or suffix
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates a new AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed sets every field tagged `env:"NAME"` from PREFIX_NAME_SUFFIX when that
// variable is set and non-empty. Nested structs are walked.
func (f AffixedEnvFeeder) Feed(structure any) error {
	if !isStructPointer(structure) {
		return fmt.Errorf("%w, got %T", ErrInvalidStructure, structure)
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}

	return processStructFields(reflect.ValueOf(structure).Elem(),
		strings.ToUpper(f.Prefix), strings.ToUpper(f.Suffix))
}

// Describe names this source for loader reporting.
func (f AffixedEnvFeeder) Describe() (kind, location string) {
	return "env", strings.Trim(strings.ToUpper(f.Prefix)+"_*_"+strings.ToUpper(f.Suffix), "_*")
}

func processStructFields(rv reflect.Value, prefix, suffix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)
		if !fieldType.IsExported() {
			continue
		}

		if err := processField(field, &fieldType, prefix, suffix); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func processField(field reflect.Value, fieldType *reflect.StructField, prefix, suffix string) error {
	switch {
	case field.Kind() == reflect.Struct:
		return processStructFields(field, prefix, suffix)
	case field.Kind() == reflect.Pointer && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
		return processStructFields(field.Elem(), prefix, suffix)
	}

	envTag, exists := fieldType.Tag.Lookup("env")
	if !exists {
		return nil
	}
	envName := envVarName(envTag, prefix, suffix)
	if envValue := os.Getenv(envName); envValue != "" {
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("%s: %w", envName, err)
		}
	}
	return nil
}

func envVarName(tag, prefix, suffix string) string {
	name := strings.ToUpper(tag)
	if prefix != "" {
		name = prefix + "_" + name
	}
	if suffix != "" {
		name = name + "_" + suffix
	}
	return name
}

func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrEnvFieldCannotBeSet
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("%w to %v: %w", ErrEnvConversion, field.Type(), err)
		}
		field.SetInt(int64(d))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("%w to %v: %w", ErrEnvConversion, field.Type(), err)
	}
	value := reflect.ValueOf(convertedValue)
	if !value.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("%w to %v", ErrEnvConversion, field.Type())
	}
	field.Set(value.Convert(field.Type()))
	return nil
}
