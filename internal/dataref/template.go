package dataref

import "sort"

// Template holds the default reference of each parameter, bound when the
// transformation is defined.
type Template map[string]Reference

// Merge lays override over base one key at a time. Empty override fields fall
// back to base; a non-nil override Value replaces the whole locator map.
func Merge(base, override Reference) Reference {
	out := base.Clone()
	if override.Storage != "" {
		out.Storage = override.Storage
	}
	if override.Format != "" {
		out.Format = override.Format
	}
	if override.Value != nil {
		out.Value = override.Clone().Value
	}
	return out
}

// Resolve merges the per-run references over the template for every name
// known to either side.
func (t Template) Resolve(perRun map[string]Reference) map[string]Reference {
	out := make(map[string]Reference, len(t)+len(perRun))
	for name, ref := range t {
		out[name] = ref.Clone()
	}
	for name, ref := range perRun {
		out[name] = Merge(out[name], ref)
	}
	return out
}

// Validate checks every default reference of the template.
func (t Template) Validate() error {
	for _, name := range t.Names() {
		if err := t[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t Template) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
