// Package shape normalizes the pending/completed progress containers.
//
// The persisted encoding of a container evolved over time and old rows were never migrated,
// so a container may be any of:
//   - an object map keyed by composite key: {"10_1_1": {...}}
//   - an object wrapping an item list:     {"ejercicios": [{"id": 10, "bloque": 1, "orden": 1}]}
//   - an object wrapping an item map:      {"items": {"a": {"id": 10, "block": 1, "order": 1}}}
//   - a bare array of item objects or key strings
//   - a legacy delimited string:           "10_1_1,11_1_2"
//
// All of them normalize to the same composite key semantics. Parsing never fails; the
// written-back encoding matches the one that was read.
package shape

import "encoding/json"

// ToCompositeMap normalizes raw into composite key -> item detail.
func ToCompositeMap(raw []byte) map[Key]json.RawMessage {
	c := Parse(raw)
	out := make(map[Key]json.RawMessage, c.Len())
	for _, it := range c.Items() {
		out[it.Key] = it.Detail
	}
	return out
}

// ToKeySet normalizes raw into the set of composite keys it holds.
func ToKeySet(raw []byte) map[Key]struct{} {
	c := Parse(raw)
	out := make(map[Key]struct{}, c.Len())
	for _, k := range c.Keys() {
		out[k] = struct{}{}
	}
	return out
}

// Aux is per-item auxiliary metadata (fitness set/rep/weight details, nutrition macros),
// addressable by composite key or one of its looser legacy variants.
type Aux struct {
	byName map[string]json.RawMessage
	items  []Item
}

// ParseAux accepts the same encodings as Parse.
func ParseAux(raw []byte) *Aux {
	c := Parse(raw)
	a := &Aux{
		byName: make(map[string]json.RawMessage),
		items:  c.Items(),
	}
	for _, e := range c.entries {
		if e.name != "" && len(e.value) > 0 && !metaFields[e.name] {
			a.byName[e.name] = e.value
		}
	}
	for _, it := range a.items {
		if _, ok := a.byName[string(it.Key)]; !ok && len(it.Detail) > 0 {
			a.byName[string(it.Key)] = it.Detail
		}
	}
	return a
}

// Lookup tries exact 3-tuple, then id_order, id_block and bare id.
func (a *Aux) Lookup(id int64, block, order int) (json.RawMessage, bool) {
	if a == nil {
		return nil, false
	}
	for _, k := range LookupKeys(id, block, order) {
		if v, ok := a.byName[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// Items are the entries of the blob that resolve to an item identity.
func (a *Aux) Items() []Item {
	if a == nil {
		return nil
	}
	return a.items
}

// Fields decodes an auxiliary payload object into its members; non-objects yield nil.
func Fields(raw json.RawMessage) map[string]json.RawMessage {
	if firstByte(raw) != '{' {
		return nil
	}
	members, err := decodeObject(raw)
	if err != nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(members))
	for _, m := range members {
		out[m.name] = m.value
	}
	return out
}

// Canonical encodes items as the canonical object map, keyed by composite key.
// Block names (index 0 is block 1) are appended as blockCount/blockNames metadata.
func Canonical(items []Item, blockNames []string) (json.RawMessage, error) {
	members := make([]member, 0, len(items)+2)
	seen := make(map[Key]bool, len(items))
	for _, it := range items {
		if seen[it.Key] {
			continue
		}
		seen[it.Key] = true
		value := it.Detail
		if firstByte(value) != '{' {
			value = canonicalDetail(it)
		}
		members = append(members, member{name: string(it.Key), value: value})
	}
	if len(blockNames) > 0 {
		count, err := json.Marshal(len(blockNames))
		if err != nil {
			return nil, err
		}
		names, err := json.Marshal(blockNames)
		if err != nil {
			return nil, err
		}
		members = append(members,
			member{name: "blockCount", value: count},
			member{name: "blockNames", value: names},
		)
	}
	return encodeObject(members)
}
