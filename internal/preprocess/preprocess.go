// Package preprocess declares the capability boundary a profile can bind a
// table mapper's preprocess_function against: a scripted per-record filter
// that can pass a record through unchanged, drop it, or replace its fields.
//
// No runtime is implemented here. The Lua and Rhai backends the original
// engine supports are an explicit Non-goal (SPEC_FULL.md §1); LoadRuntime
// always reports ErrNoRuntime so that a profile naming a preprocess_function
// fails construction with a clear, typed error rather than silently
// no-opping.
package preprocess

import (
	"context"
	"errors"
)

// ErrNoRuntime is returned by LoadRuntime: no scripting backend is built
// into this engine.
var ErrNoRuntime = errors.New("preprocess: no script runtime available in this build")

// Record is the field set a transform receives and may return in modified
// form. It holds the fields of an internal/datasource record as parallel
// name/value slices; their order is not defined.
type Record struct {
	Fields []string
	Values []string
}

// Get returns the value bound to name and whether it was present.
func (r Record) Get(name string) (string, bool) {
	for i, f := range r.Fields {
		if f == name {
			return r.Values[i], true
		}
	}
	return "", false
}

// Runtime resolves a named function within a loaded script to a Transform.
type Runtime interface {
	Function(name string) (Transform, error)
}

// Transform applies a preprocess function to one record. Returning a nil
// Record with a nil error means "drop this record"; returning an error
// aborts the current table mapper.
type Transform interface {
	Transform(ctx context.Context, record Record) (*Record, error)
}

// Language identifies a scripting backend a preprocess script declares or
// infers from its file extension.
type Language int

const (
	LanguageLua Language = iota
	LanguageRhai
)

// LanguageFromExtension infers a script Language from a file extension
// (".lua"/".luau" -> Lua, ".rhai" -> Rhai), matching
// PreprocessScript::language()'s extension sniffing in the original engine.
func LanguageFromExtension(ext string) (Language, bool) {
	switch ext {
	case ".lua", ".luau":
		return LanguageLua, true
	case ".rhai":
		return LanguageRhai, true
	default:
		return 0, false
	}
}

// LoadRuntime always fails: see the package doc comment.
func LoadRuntime(language Language) (Runtime, error) {
	return nil, ErrNoRuntime
}
