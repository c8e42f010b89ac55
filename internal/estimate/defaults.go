package estimate

import (
	"maps"
	"sort"
	"strings"
)

// FallbackLabel is used for unknown or missing categories.
const FallbackLabel = "other"

var builtinDefaults = map[string]float64{
	"coding":        120,
	"design":        90,
	"planning":      60,
	"testing":       45,
	"documentation": 60,
	"meeting":       30,
	FallbackLabel:   60,
}

// Defaults maps a category label to a duration in minutes. It is immutable once built.
type Defaults struct {
	m map[string]float64
}

// NewDefaults returns the built-in table with overrides applied. Non-positive overrides
// are ignored. Labels are case-insensitive.
func NewDefaults(overrides map[string]float64) Defaults {
	m := maps.Clone(builtinDefaults)
	for k, v := range overrides {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || v <= 0 {
			continue
		}
		m[k] = v
	}
	return Defaults{m: m}
}

// Minutes returns the default for label, falling back to "other".
func (d Defaults) Minutes(label string) float64 {
	m := d.m
	if m == nil {
		m = builtinDefaults
	}
	if v, ok := m[strings.ToLower(strings.TrimSpace(label))]; ok {
		return v
	}
	return m[FallbackLabel]
}

// Labels returns the known labels, sorted.
func (d Defaults) Labels() []string {
	m := d.m
	if m == nil {
		m = builtinDefaults
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
