package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/go-test/deep"
)

// DiffKind classifies one difference between two snapshots.
type DiffKind string

const (
	DiffMissingInFirst  DiffKind = "missing_in_first"
	DiffMissingInSecond DiffKind = "missing_in_second"
	DiffValueMismatch   DiffKind = "value_mismatch"
)

// Difference is one named variable that does not match across snapshots.
type Difference struct {
	Name    string          `json:"name"`
	Kind    DiffKind        `json:"kind"`
	First   json.RawMessage `json:"first,omitempty"`
	Second  json.RawMessage `json:"second,omitempty"`
	Details []string        `json:"details,omitempty"`
}

// Compare reports differences over the union of both snapshots' names.
// Names only one side holds are reported as missing on the other side;
// shared names are compared by structural equality of the decoded values.
// Output order is first's insertion order, then names only second holds.
func Compare(first, second *Snapshot) []Difference {
	var diffs []Difference
	for _, name := range first.Names() {
		a, _ := first.Raw(name)
		b, ok := second.Raw(name)
		if !ok {
			diffs = append(diffs, Difference{Name: name, Kind: DiffMissingInSecond, First: a})
			continue
		}
		if d, differ := compareValues(name, a, b); differ {
			diffs = append(diffs, d)
		}
	}
	for _, name := range second.Names() {
		if first.Has(name) {
			continue
		}
		b, _ := second.Raw(name)
		diffs = append(diffs, Difference{Name: name, Kind: DiffMissingInFirst, Second: b})
	}
	return diffs
}

// Equal reports whether Compare would find no differences.
func Equal(first, second *Snapshot) bool {
	return len(Compare(first, second)) == 0
}

func compareValues(name string, a, b json.RawMessage) (Difference, bool) {
	av, aErr := decodeExact(a)
	bv, bErr := decodeExact(b)
	if aErr != nil || bErr != nil {
		if string(a) == string(b) {
			return Difference{}, false
		}
		return Difference{Name: name, Kind: DiffValueMismatch, First: a, Second: b}, true
	}
	if valuesEqual(av, bv) {
		return Difference{}, false
	}
	d := Difference{Name: name, Kind: DiffValueMismatch, First: a, Second: b}
	if isComposite(av) || isComposite(bv) {
		d.Details = deep.Equal(canonical(av), canonical(bv))
	}
	return d, true
}

// decodeExact decodes raw keeping numbers as their literal text.
func decodeExact(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// valuesEqual is structural equality where numbers compare by exact value,
// so 1 and 1.0 are equal but 2^53 and 2^53+1 are not.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case json.Number:
		bv, ok := b.(json.Number)
		return ok && numbersEqual(av, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !valuesEqual(x, y) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func numbersEqual(a, b json.Number) bool {
	if a == b {
		return true
	}
	x, okx := new(big.Rat).SetString(a.String())
	y, oky := new(big.Rat).SetString(b.String())
	return okx && oky && x.Cmp(y) == 0
}

// canonical rewrites numbers so equal values print identically in details.
func canonical(v any) any {
	switch t := v.(type) {
	case json.Number:
		r, ok := new(big.Rat).SetString(t.String())
		if !ok {
			return t.String()
		}
		if r.IsInt() {
			return r.Num().String()
		}
		f, _ := r.Float64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = canonical(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = canonical(x)
		}
		return out
	default:
		return v
	}
}

func isComposite(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

// Format renders d for console output using the two participant labels.
func (d Difference) Format(firstLabel, secondLabel string) string {
	switch d.Kind {
	case DiffMissingInFirst:
		return fmt.Sprintf("Variable '%s' exists in %s but not in %s", d.Name, secondLabel, firstLabel)
	case DiffMissingInSecond:
		return fmt.Sprintf("Variable '%s' exists in %s but not in %s", d.Name, firstLabel, secondLabel)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Variable '%s' differs:\n", d.Name)
	fmt.Fprintf(&b, "  %s: %s\n", firstLabel, d.First)
	fmt.Fprintf(&b, "  %s: %s", secondLabel, d.Second)
	for _, detail := range d.Details {
		fmt.Fprintf(&b, "\n    %s", detail)
	}
	return b.String()
}
