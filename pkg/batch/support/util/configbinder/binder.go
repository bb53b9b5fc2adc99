// Package configbinder decodes loosely typed configuration maps into structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties binds a map of properties to a target struct using mapstructure.
// It reads the "yaml" tag and allows weakly typed input, so "8" binds to an int field.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	return bind(properties, target, true, false)
}

// BindStrict binds like BindProperties but rejects keys the target does not declare.
// Parameter-space dimensions use it so a misspelled bound is an error rather than a zero.
func BindStrict(properties map[string]interface{}, target interface{}) error {
	return bind(properties, target, true, true)
}

func bind(properties map[string]interface{}, target interface{}, weak, errorUnused bool) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: weak,
		ErrorUnused:      errorUnused,
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to %s: %w", targetType.Name(), err)
	}
	return nil
}
