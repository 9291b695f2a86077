package model

import "fmt"

// profiles is the lookup table from model key to the closed variant of
// protocol facts that key implies (spec.md §9 "Adapter polymorphism").
// It is the one place new printer series are onboarded.
var profiles = map[string]ModelProfile{
	"fp700x": {Builder: BuilderTab, Dialect: DialectByte, StatusBytes: 6, Encoding: "cp1251"},
	"fp700mx": {Builder: BuilderTab, Dialect: DialectByte, StatusBytes: 6, Encoding: "cp1251"},
	"dp25x":  {Builder: BuilderTab, Dialect: DialectByte, StatusBytes: 6, Encoding: "cp1251"},
	"wp50x":  {Builder: BuilderTab, Dialect: DialectHexNibble, StatusBytes: 8, Encoding: "cp1251"},
	"fp2000": {Builder: BuilderCompact, Dialect: DialectHexNibble, StatusBytes: 8, Encoding: "cp1251"},
	"fp650":  {Builder: BuilderCompact, Dialect: DialectHexNibble, StatusBytes: 8, Encoding: "cp1251"},
	"fmpx":   {Builder: BuilderCompact, Dialect: DialectByte, StatusBytes: 6, Encoding: "cp1251"},
}

// ResolveProfile looks up the protocol facts a model key implies.
func ResolveProfile(modelKey string) (ModelProfile, error) {
	p, ok := profiles[modelKey]
	if !ok {
		return ModelProfile{}, fmt.Errorf("model: unknown model key %q", modelKey)
	}
	return p, nil
}

// RegisterProfile adds or overrides a model key's profile; used by tests
// and by deployments onboarding a series not in the built-in table.
func RegisterProfile(modelKey string, p ModelProfile) {
	profiles[modelKey] = p
}
