package bnconfig

import (
	"fmt"
	"os"
	"reflect"

	"github.com/kelseyhightower/envconfig"
	"github.com/naoina/toml"
)

// envPrefix is the single prefix under which any settings key may be
// overridden (spec §6).
const envPrefix = "BN"

// tomlSettings mirrors the teacher's own cmd/utils config decoder:
// a key matches a field's toml tag exactly (or, for an untagged field,
// its Go field name exactly), and unknown keys are ignored rather than
// rejected (so a config file written for a newer node doesn't
// hard-fail an older binary).
var tomlSettings = toml.Config{
	NormFieldName: func(typ reflect.Type, key string) string { return key },
	FieldToKey:    func(typ reflect.Type, field string) string { return field },
	MissingField:  func(typ reflect.Type, field string) error { return nil },
}

// Load reads path (if non-empty) as TOML into the defaults, then
// applies the BN_ environment overlay on top.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Settings{}, fmt.Errorf("open config %q: %w", path, err)
		}
		defer f.Close()
		if err := tomlSettings.NewDecoder(f).Decode(&s); err != nil {
			return Settings{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("apply %s_ environment overrides: %w", envPrefix, err)
	}
	return s, nil
}
