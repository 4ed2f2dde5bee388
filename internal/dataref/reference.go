// Package dataref describes where a value lives, how it is encoded and under
// which named variants it can be resolved.
package dataref

import (
	"sort"
	"strings"

	"adi/internal/errs"
)

// Variant is the named role of one artifact instance.
type Variant string

const (
	VariantOriginal Variant = "original"
	VariantImported Variant = "imported"
	VariantSample   Variant = "sample"
)

type StorageKind string

const (
	StorageLocal        StorageKind = "local"
	StorageMemory       StorageKind = "memory"
	StorageSwiftTempURL StorageKind = "swift-tempurl"
	StorageMinio        StorageKind = "minio"
	StorageKafka        StorageKind = "kafka"
)

var storageKinds = []StorageKind{StorageLocal, StorageMemory, StorageSwiftTempURL, StorageMinio, StorageKafka}

type DataFormat string

const (
	FormatCSV     DataFormat = "csv"
	FormatJSON    DataFormat = "json"
	FormatParquet DataFormat = "parquet"
	FormatRaw     DataFormat = "raw"
)

var formats = []DataFormat{FormatCSV, FormatJSON, FormatParquet, FormatRaw}

func StorageKinds() []StorageKind { return append([]StorageKind(nil), storageKinds...) }
func Formats() []DataFormat       { return append([]DataFormat(nil), formats...) }

func ParseStorageKind(s string) (StorageKind, error) {
	k := StorageKind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, nil
	}
	return "", errs.UnsupportedKind("dataref", "storage %q", s)
}

func ParseFormat(s string) (DataFormat, error) {
	f := DataFormat(strings.ToLower(strings.TrimSpace(s)))
	if f.Valid() {
		return f, nil
	}
	return "", errs.UnsupportedKind("dataref", "format %q", s)
}

func (k StorageKind) Valid() bool {
	for _, known := range storageKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (f DataFormat) Valid() bool {
	for _, known := range formats {
		if f == known {
			return true
		}
	}
	return false
}

// Reference is the wire shape {storage, format, value: {variant: locator}}.
type Reference struct {
	Storage StorageKind        `yaml:"storage" json:"storage"`
	Format  DataFormat         `yaml:"format" json:"format"`
	Value   map[Variant]string `yaml:"value" json:"value"`
}

// Validate rejects storage kinds and formats outside the closed sets.
func (r Reference) Validate() error {
	if !r.Storage.Valid() {
		return errs.UnsupportedKind("dataref", "storage %q", r.Storage)
	}
	if !r.Format.Valid() {
		return errs.UnsupportedKind("dataref", "format %q", r.Format)
	}
	return nil
}

// Locator returns the handle for v. A missing variant is a configuration
// error, never a silent skip.
func (r Reference) Locator(v Variant) (string, error) {
	loc, ok := r.Value[v]
	if !ok || loc == "" {
		return "", errs.Configuration("dataref", "reference %s/%s has no locator for variant %q (have %s)",
			r.Storage, r.Format, v, strings.Join(r.variants(), ","))
	}
	return loc, nil
}

func (r Reference) variants() []string {
	out := make([]string, 0, len(r.Value))
	for v := range r.Value {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}

// Clone copies the value map so callers can mutate the result freely.
func (r Reference) Clone() Reference {
	out := r
	if r.Value != nil {
		out.Value = make(map[Variant]string, len(r.Value))
		for k, v := range r.Value {
			out.Value[k] = v
		}
	}
	return out
}
