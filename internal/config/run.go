package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"adi/internal/dataref"
	"adi/internal/errs"
	"adi/internal/spec"
)

const SupportedSchema = "v1"

// LoadRunSpec parses a run document, validates schema_version and the
// transform selection, and resolves relative local locators against the
// document's directory.
func LoadRunSpec(path string) (spec.File, error) {
	var f spec.File
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("run spec %s: %w", path, err)
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = SupportedSchema
	}
	if f.SchemaVersion != SupportedSchema {
		return f, errs.Configuration("run spec", "schema_version %q not supported (want %q)", f.SchemaVersion, SupportedSchema)
	}
	switch {
	case f.Transform.Builtin != "" && f.Transform.Plugin != nil:
		return f, errs.Configuration("run spec", "transform names both a builtin and a plugin")
	case f.Transform.Builtin == "" && f.Transform.Plugin == nil:
		return f, errs.Configuration("run spec", "transform names neither a builtin nor a plugin")
	case f.Transform.Plugin != nil && (f.Transform.Plugin.Address == "" || f.Transform.Plugin.Name == ""):
		return f, errs.Configuration("run spec", "plugin needs an address and a name")
	}
	if f.Name == "" {
		f.Name = f.Transform.Builtin
		if f.Transform.Plugin != nil {
			f.Name = f.Transform.Plugin.Name
		}
	}

	dir := filepath.Dir(path)
	for name, ref := range f.Defaults {
		f.Defaults[name] = resolveLocal(dir, ref)
	}
	for name, ref := range f.Input {
		f.Input[name] = resolveLocal(dir, ref)
	}
	f.Output = resolveLocal(dir, f.Output)
	return f, nil
}

func resolveLocal(dir string, ref dataref.Reference) dataref.Reference {
	if ref.Storage != dataref.StorageLocal {
		return ref
	}
	out := ref.Clone()
	for v, loc := range out.Value {
		if loc != "" && !filepath.IsAbs(loc) {
			out.Value[v] = filepath.Join(dir, loc)
		}
	}
	return out
}
