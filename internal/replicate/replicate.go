// Package replicate groups one feature's per-sample values by an ordering
// key, producing the ordered series used for comparative display.
package replicate

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/koustreak/ExprDB/internal/catalog"
)

// Key orders samples. Numeric keys compare numerically and sort before
// text keys; text keys compare bytewise.
type Key struct {
	Numeric bool
	Num     float64
	Text    string
}

func NumberKey(f float64) Key { return Key{Numeric: true, Num: f} }
func TextKey(s string) Key    { return Key{Text: s} }

// ParseKey reads s as a number when it is a finite numeric literal and as
// text otherwise.
func ParseKey(s string) Key {
	t := strings.TrimSpace(s)
	if catalog.IsReal(t) {
		v, _ := catalog.ParseValue(catalog.TypeReal, t)
		return NumberKey(v.Real)
	}
	return TextKey(s)
}

// KeyOf derives a key from a typed value. Nulls become the empty text key.
func KeyOf(v catalog.Value) Key {
	if f, ok := v.Float(); ok {
		return NumberKey(f)
	}
	s, _ := v.Format()
	return TextKey(s)
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(o Key) int {
	switch {
	case k.Numeric && !o.Numeric:
		return -1
	case !k.Numeric && o.Numeric:
		return 1
	case k.Numeric:
		return compareFloat(k.Num, o.Num)
	}
	return strings.Compare(k.Text, o.Text)
}

func (k Key) String() string {
	if k.Numeric {
		return catalog.RealValue(k.Num).String()
	}
	return k.Text
}

func (k Key) MarshalJSON() ([]byte, error) {
	if k.Numeric {
		return json.Marshal(k.Num)
	}
	return json.Marshal(k.Text)
}

// Sample is one sample's value for a single feature.
type Sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Options controls grouping.
type Options struct {
	// Merge puts samples with equal keys into one group. Without it every
	// sample forms its own group, and equal keys are ordered by value.
	Merge bool `json:"merge"`

	// Log2 replaces every value with its base-2 logarithm. Values that are
	// zero or negative become NaN.
	Log2 bool `json:"log2"`

	// Descending reverses the key order.
	Descending bool `json:"descending"`
}

// Group is a run of samples sharing one key, in sorted order.
type Group struct {
	Key     Key      `json:"key"`
	Samples []string `json:"samples"`
	Values  Values   `json:"values"`
}

// Values may hold NaN, which JSON cannot carry; those are encoded as the
// string "NaN" (and infinities as "+Inf"/"-Inf").
type Values []float64

func (vs Values) MarshalJSON() ([]byte, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = catalog.RealValue(v).String()
			continue
		}
		out[i] = v
	}
	return json.Marshal(out)
}

type entry struct {
	key   Key
	name  string
	value float64
}

// Groups sorts samples by their key and sweeps equal keys into groups.
// A sample with no entry in keys is keyed by its own name; a nil map keys
// every sample that way, which yields one group per sample.
func Groups(samples []Sample, keys map[string]Key, opts Options) []Group {
	entries := make([]entry, len(samples))
	for i, s := range samples {
		k, ok := keys[s.Name]
		if !ok {
			k = TextKey(s.Name)
		}
		v := s.Value
		if opts.Log2 {
			v = log2(v)
		}
		entries[i] = entry{key: k, name: s.Name, value: v}
	}

	less := func(a, b entry) bool {
		c := a.key.Compare(b.key)
		if opts.Descending {
			c = -c
		}
		if c != 0 || opts.Merge {
			return c < 0
		}
		return compareFloat(a.value, b.value) < 0
	}
	sort.SliceStable(entries, func(i, j int) bool { return less(entries[i], entries[j]) })

	var out []Group
	for _, e := range entries {
		if n := len(out); opts.Merge && n > 0 && out[n-1].Key.Compare(e.key) == 0 {
			out[n-1].Samples = append(out[n-1].Samples, e.name)
			out[n-1].Values = append(out[n-1].Values, e.value)
			continue
		}
		out = append(out, Group{Key: e.key, Samples: []string{e.name}, Values: Values{e.value}})
	}
	return out
}

// log2 yields NaN rather than -Inf or an error for non-positive input.
func log2(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return math.NaN()
	}
	return math.Log2(v)
}

// compareFloat orders NaN after every number so sorting stays total.
func compareFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
