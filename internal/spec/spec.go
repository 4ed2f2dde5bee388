// Package spec holds the run document: which transformation to run, on
// which inputs, and where the result goes.
package spec

import "adi/internal/dataref"

type PluginSpec struct {
	Address   string `yaml:"address"` // e.g. "localhost:50052"
	Name      string `yaml:"name"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type TransformSpec struct {
	// Builtin names a function compiled into the binary.
	Builtin string         `yaml:"builtin"`
	Plugin  *PluginSpec    `yaml:"plugin"`
	Options map[string]any `yaml:"options"`
}

// EngineOverrides replace the configured engine settings for one run.
type EngineOverrides struct {
	ChunkRows  *int   `yaml:"chunk_rows"`
	SampleMode string `yaml:"sample_mode"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`
	Name          string `yaml:"name"`

	Transform TransformSpec   `yaml:"transform"`
	Engine    EngineOverrides `yaml:"engine"`

	// Input references are merged over Defaults per name.
	Defaults dataref.Template            `yaml:"defaults"`
	Input    map[string]dataref.Reference `yaml:"input"`
	Output   dataref.Reference            `yaml:"output"`
}
