// Package reconcile ties country identifiers from independently keyed sources
// together. Matching is exact: identical identifiers, identical canonical
// names, or an explicit override. Nothing is matched approximately.
package reconcile

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"worldpanel/internal/panel"
)

// Scheme names an identifier space.
type Scheme string

const (
	SchemeCode  Scheme = "code"
	SchemeName  Scheme = "name"
	SchemeTrade Scheme = "trade"
)

// Ref is an identifier in a given scheme.
type Ref struct {
	Scheme Scheme
	ID     string
}

// DefaultOverrides are names used by the energy and trade sources that match
// no regional metadata name.
func DefaultOverrides() map[string]string {
	return map[string]string{
		"People's Republic of China": "China",
		"Korea":                      "Korea, Rep.",
	}
}

// Mapping resolves identifiers to canonical names. A scheme registered with a
// lookup dictionary only knows the identifiers in it; a scheme without one
// uses its identifiers as canonical names.
type Mapping struct {
	lookups   map[Scheme]map[string]string
	overrides map[string]string
}

func NewMapping(overrides map[string]string) *Mapping {
	m := &Mapping{
		lookups:   make(map[Scheme]map[string]string),
		overrides: make(map[string]string, len(overrides)),
	}
	for from, to := range overrides {
		m.overrides[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	return m
}

// WithLookup registers the identifier -> canonical name dictionary of a scheme.
func (m *Mapping) WithLookup(scheme Scheme, lookup map[string]string) *Mapping {
	dict := make(map[string]string, len(lookup))
	for id, name := range lookup {
		dict[strings.TrimSpace(id)] = strings.TrimSpace(name)
	}
	m.lookups[scheme] = dict
	return m
}

// IsOverride reports whether name is a key of the override table.
func (m *Mapping) IsOverride(name string) bool {
	_, ok := m.overrides[strings.TrimSpace(name)]
	return ok
}

// Canonical returns the canonical name of r through its scheme's lookup.
func (m *Mapping) Canonical(r Ref) (string, bool) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return "", false
	}
	dict, ok := m.lookups[r.Scheme]
	if !ok {
		return id, true
	}
	name, ok := dict[id]
	return name, ok && name != ""
}

func (m *Mapping) override(r Ref) (string, bool) {
	if name, ok := m.overrides[strings.TrimSpace(r.ID)]; ok {
		return name, true
	}
	if canonical, ok := m.Canonical(r); ok {
		name, ok := m.overrides[canonical]
		return name, ok
	}
	return "", false
}

// Match reports whether a and b denote the same entity.
func (m *Mapping) Match(a, b Ref) bool {
	idA, idB := strings.TrimSpace(a.ID), strings.TrimSpace(b.ID)
	if idA != "" && idA == idB {
		return true
	}
	nameA, okA := m.Canonical(a)
	nameB, okB := m.Canonical(b)
	if okA && okB && nameA == nameB {
		return true
	}
	if over, ok := m.override(a); ok && okB && over == nameB {
		return true
	}
	if over, ok := m.override(b); ok && okA && over == nameA {
		return true
	}
	return false
}

type Pair struct {
	Left  Ref
	Right Ref
}

// Resolution is the outcome of matching two identifier lists.
type Resolution struct {
	Pairs          []Pair
	UnmatchedLeft  []string
	UnmatchedRight []string
}

// Index maps each matched left identifier to its right identifier.
func (r Resolution) Index() map[string]string {
	index := make(map[string]string, len(r.Pairs))
	for _, pair := range r.Pairs {
		index[pair.Left.ID] = pair.Right.ID
	}
	return index
}

// Reverse maps each matched right identifier to its left identifier. When
// several left identifiers share a right one, the first pair wins.
func (r Resolution) Reverse() map[string]string {
	index := make(map[string]string, len(r.Pairs))
	for _, pair := range r.Pairs {
		if _, ok := index[pair.Right.ID]; ok {
			continue
		}
		index[pair.Right.ID] = pair.Left.ID
	}
	return index
}

type rightIndex struct {
	byID       map[string]int
	byName     map[string]int
	byOverride map[string]int
}

func (idx rightIndex) put(table map[string]int, key string, i int) {
	if key == "" {
		return
	}
	if _, ok := table[key]; ok {
		return
	}
	table[key] = i
}

// Resolve pairs every left identifier with a right one. The right side is
// indexed once so each left identifier costs a constant number of lookups.
func (m *Mapping) Resolve(left, right []Ref) Resolution {
	idx := rightIndex{
		byID:       make(map[string]int, len(right)),
		byName:     make(map[string]int, len(right)),
		byOverride: make(map[string]int),
	}
	for i, r := range right {
		idx.put(idx.byID, strings.TrimSpace(r.ID), i)
		if name, ok := m.Canonical(r); ok {
			idx.put(idx.byName, name, i)
		}
		if over, ok := m.override(r); ok {
			idx.put(idx.byOverride, over, i)
		}
	}

	var res Resolution
	used := make([]bool, len(right))
	for _, l := range left {
		i, ok := m.lookup(idx, l)
		if !ok {
			res.UnmatchedLeft = append(res.UnmatchedLeft, l.ID)
			continue
		}
		used[i] = true
		res.Pairs = append(res.Pairs, Pair{Left: l, Right: right[i]})
	}
	for i, r := range right {
		if !used[i] {
			res.UnmatchedRight = append(res.UnmatchedRight, r.ID)
		}
	}
	sort.Strings(res.UnmatchedLeft)
	sort.Strings(res.UnmatchedRight)
	return res
}

func (m *Mapping) lookup(idx rightIndex, l Ref) (int, bool) {
	if i, ok := idx.byID[strings.TrimSpace(l.ID)]; ok && l.ID != "" {
		return i, true
	}
	name, hasName := m.Canonical(l)
	if hasName {
		if i, ok := idx.byName[name]; ok {
			return i, true
		}
	}
	if over, ok := m.override(l); ok {
		if i, ok := idx.byName[over]; ok {
			return i, true
		}
	}
	if hasName {
		if i, ok := idx.byOverride[name]; ok {
			return i, true
		}
	}
	return 0, false
}

// Report logs the unmatched identifiers of both sides so the override table
// can be extended.
func (r Resolution) Report(leftLabel, rightLabel string) {
	log := zap.L().With(zap.String("component", "reconcile"))
	if len(r.UnmatchedLeft) > 0 {
		log.Warn("unmatched identifiers",
			zap.String("side", leftLabel),
			zap.String("against", rightLabel),
			zap.Strings("items", r.UnmatchedLeft),
		)
	}
	if len(r.UnmatchedRight) > 0 {
		log.Warn("unmatched identifiers",
			zap.String("side", rightLabel),
			zap.String("against", leftLabel),
			zap.Strings("items", r.UnmatchedRight),
		)
	}
	log.Info("reconciled",
		zap.String("left", leftLabel),
		zap.String("right", rightLabel),
		zap.Int("pairs", len(r.Pairs)),
	)
}

// Refs wraps identifiers of one scheme.
func Refs(scheme Scheme, ids []string) []Ref {
	refs := make([]Ref, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, Ref{Scheme: scheme, ID: id})
	}
	return refs
}

type DictEntry struct {
	Key   string
	Value string
}

// DictDiff lists the keys present in only one of two dictionaries.
type DictDiff struct {
	OnlyInA []DictEntry
	OnlyInB []DictEntry
}

func (d DictDiff) Empty() bool {
	return len(d.OnlyInA) == 0 && len(d.OnlyInB) == 0
}

func Diff(a, b map[string]string) DictDiff {
	var diff DictDiff
	for key, value := range a {
		if _, ok := b[key]; !ok {
			diff.OnlyInA = append(diff.OnlyInA, DictEntry{Key: key, Value: value})
		}
	}
	for key, value := range b {
		if _, ok := a[key]; !ok {
			diff.OnlyInB = append(diff.OnlyInB, DictEntry{Key: key, Value: value})
		}
	}
	sort.Slice(diff.OnlyInA, func(i, j int) bool { return diff.OnlyInA[i].Key < diff.OnlyInA[j].Key })
	sort.Slice(diff.OnlyInB, func(i, j int) bool { return diff.OnlyInB[i].Key < diff.OnlyInB[j].Key })
	return diff
}

// Reindex returns a table keyed by the keys of index, each row copied from the
// row index names. Keys whose source row is absent are skipped.
func Reindex(t *panel.Table, index map[string]string) (*panel.Table, error) {
	keys := make([]string, 0, len(index))
	for key := range index {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := panel.New()
	for _, column := range t.Columns() {
		out.AddColumn(column, t.IsDerived(column))
	}
	for _, key := range keys {
		from := index[key]
		attrs, ok := t.Attributes(from)
		if !ok {
			continue
		}
		out.AddRow(key, attrs)
		for _, column := range t.Columns() {
			cell := t.Cell(from, column)
			if !cell.Valid {
				continue
			}
			if err := out.Set(key, column, cell.Value, cell.Source); err != nil {
				return nil, eris.Wrap(err, "reconcile: reindex")
			}
		}
	}
	return out, nil
}

type overrideFile struct {
	Overrides map[string]string `yaml:"overrides"`
}

// LoadOverrides reads an override table and merges it over the defaults. An
// empty path yields the defaults.
func LoadOverrides(path string) (map[string]string, error) {
	overrides := DefaultOverrides()
	if strings.TrimSpace(path) == "" {
		return overrides, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reconcile: read overrides %s", path)
	}
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrapf(err, "reconcile: parse overrides %s", path)
	}
	for from, to := range file.Overrides {
		overrides[from] = to
	}
	return overrides, nil
}
