package shape

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Shape is the on-disk encoding of a pending/completed container.
type Shape int

const (
	ShapeNone         Shape = iota // null, empty or unparseable
	ShapeObjectMap                 // {"10_1_1": {...}, "blockNames": [...]}
	ShapeWrappedArray              // {"ejercicios": [{...}], "blockCount": 2}
	ShapeWrappedMap                // {"items": {"a": {...}}}
	ShapeArray                     // [{...}, "10_1_1"]
	ShapeDelimited                 // "10_1_1,11_1_2"
)

func (s Shape) String() string {
	switch s {
	case ShapeObjectMap:
		return "object-map"
	case ShapeWrappedArray:
		return "wrapped-array"
	case ShapeWrappedMap:
		return "wrapped-map"
	case ShapeArray:
		return "array"
	case ShapeDelimited:
		return "delimited"
	default:
		return "none"
	}
}

// Outcome summarizes how much of a container could be decoded.
type Outcome int

const (
	OutcomeEmpty Outcome = iota
	OutcomePartial
	OutcomeFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomePartial:
		return "partial"
	case OutcomeFull:
		return "full"
	default:
		return "empty"
	}
}

// Item is one normalized entry of a container.
type Item struct {
	Key   Key
	ID    int64
	Block int
	Order int

	// RawKey is the member name or token the item was persisted under ("" for array elements).
	RawKey string
	// Short is set when the persisted key carried no block (legacy "id_order" / "id").
	Short bool
	// Detail is the persisted payload of the item, kept verbatim.
	Detail json.RawMessage
}

// entry is one persisted element of the collection. Entries without an item
// (metadata, malformed or duplicate elements) are written back untouched.
type entry struct {
	name  string
	value json.RawMessage
	item  *Item
	dup   bool
}

// Container is the normalized view of a persisted pending/completed container.
// It keeps enough of the original encoding to write itself back in the same shape.
type Container struct {
	shape  Shape
	field  string   // wrapping field for wrapped shapes
	outer  []member // top-level members of wrapped shapes
	delim  string
	double bool // the whole container was stored as a JSON string

	entries []entry
	index   map[Key]int // key -> position in entries of the first (canonical) occurrence

	dropped    int
	duplicates int
	err        error
}

func newContainer() *Container {
	return &Container{index: make(map[Key]int)}
}

// Parse normalizes any historically valid container encoding. It never fails:
// malformed input yields an empty or partial container, see Err and Dropped.
func Parse(raw []byte) *Container {
	c := newContainer()
	c.parse(raw, 0)
	return c
}

func (c *Container) parse(raw []byte, depth int) {
	if isNull(raw) {
		return
	}

	switch firstByte(raw) {
	case '"':
		c.parseString(raw, depth)
	case '{':
		c.parseObject(raw)
	case '[':
		c.shape = ShapeArray
		var elements []json.RawMessage
		if err := json.Unmarshal(raw, &elements); err != nil {
			c.shape = ShapeNone
			c.err = fmt.Errorf("unmarshal array: %w", err)
			return
		}
		c.addElements(elements)
	default:
		c.err = fmt.Errorf("unexpected container value: %.32s", raw)
	}
}

func (c *Container) parseString(raw []byte, depth int) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		c.err = fmt.Errorf("unmarshal string: %w", err)
		return
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}

	switch s[0] {
	case '{', '[', '"':
		if depth > 0 {
			c.err = fmt.Errorf("container encoded more than twice")
			return
		}
		c.double = true
		c.parse([]byte(s), depth+1)
		return
	}

	c.shape = ShapeDelimited
	c.delim = detectDelimiter(s)
	for _, token := range strings.FieldsFunc(s, isDelimiter) {
		id, block, order, short, ok := ParseKey(token)
		if !ok {
			c.dropped++
			c.entries = append(c.entries, entry{name: token})
			continue
		}
		c.addItem(entry{name: token}, Item{
			Key:    NewKey(id, block, order),
			ID:     id,
			Block:  block,
			Order:  order,
			RawKey: token,
			Short:  short,
		})
	}
}

func (c *Container) parseObject(raw []byte) {
	members, err := decodeObject(raw)
	if err != nil {
		c.err = fmt.Errorf("decode object: %w", err)
		return
	}

	for _, field := range itemsFields {
		for _, m := range members {
			if m.name != field {
				continue
			}
			c.field = field
			c.outer = members
			switch firstByte(m.value) {
			case '{':
				c.shape = ShapeWrappedMap
				inner, err := decodeObject(m.value)
				if err != nil {
					c.err = fmt.Errorf("decode [%s]: %w", field, err)
					return
				}
				c.addMembers(inner)
			case '[':
				c.shape = ShapeWrappedArray
				var elements []json.RawMessage
				if err := json.Unmarshal(m.value, &elements); err != nil {
					c.err = fmt.Errorf("unmarshal [%s]: %w", field, err)
					return
				}
				c.addElements(elements)
			default:
				// {"items": null}
				c.shape = ShapeWrappedArray
			}
			return
		}
	}

	c.shape = ShapeObjectMap
	c.addMembers(members)
}

func (c *Container) addElements(elements []json.RawMessage) {
	for _, el := range elements {
		e := entry{value: el}
		switch firstByte(el) {
		case '{':
			if detail, token, ok := splitKeyMarker(el); ok {
				if id, block, order, short, ok := ParseKey(token); ok {
					c.addItem(e, Item{
						Key:    NewKey(id, block, order),
						ID:     id,
						Block:  block,
						Order:  order,
						RawKey: token,
						Short:  short,
						Detail: detail,
					})
					continue
				}
			}
			id, block, order, ok := itemIdentity(el)
			if !ok {
				c.dropped++
				c.entries = append(c.entries, e)
				continue
			}
			c.addItem(e, Item{
				Key:    NewKey(id, block, order),
				ID:     id,
				Block:  block,
				Order:  order,
				Detail: el,
			})
		case '"':
			var token string
			_ = json.Unmarshal(el, &token)
			id, block, order, short, ok := ParseKey(token)
			if !ok {
				c.dropped++
				c.entries = append(c.entries, e)
				continue
			}
			c.addItem(e, Item{
				Key:    NewKey(id, block, order),
				ID:     id,
				Block:  block,
				Order:  order,
				RawKey: token,
				Short:  short,
				Detail: el,
			})
		default:
			c.dropped++
			c.entries = append(c.entries, e)
		}
	}
}

func (c *Container) addMembers(members []member) {
	for _, m := range members {
		e := entry{name: m.name, value: m.value}
		if metaFields[m.name] {
			c.entries = append(c.entries, e)
			continue
		}

		// an item object carrying its own identity is preferred over the member name
		if id, block, order, ok := itemIdentity(m.value); ok {
			c.addItem(e, Item{
				Key:    NewKey(id, block, order),
				ID:     id,
				Block:  block,
				Order:  order,
				RawKey: m.name,
				Detail: m.value,
			})
			continue
		}

		id, block, order, short, ok := ParseKey(m.name)
		if !ok {
			c.dropped++
			c.entries = append(c.entries, e)
			continue
		}
		c.addItem(e, Item{
			Key:    NewKey(id, block, order),
			ID:     id,
			Block:  block,
			Order:  order,
			RawKey: m.name,
			Short:  short,
			Detail: m.value,
		})
	}
}

func (c *Container) addItem(e entry, it Item) {
	item := it
	e.item = &item
	if _, exists := c.index[it.Key]; exists {
		c.duplicates++
		e.dup = true
		c.entries = append(c.entries, e)
		return
	}
	c.index[it.Key] = len(c.entries)
	c.entries = append(c.entries, e)
}

func (c *Container) reindex() {
	c.index = make(map[Key]int, len(c.index))
	for i, e := range c.entries {
		if e.item == nil || e.dup {
			continue
		}
		c.index[e.item.Key] = i
	}
}

func (c *Container) Shape() Shape {
	return c.shape
}

// Field is the wrapping field name for wrapped shapes.
func (c *Container) Field() string {
	return c.field
}

// Err is the decode error of a malformed container, if any. Informational only.
func (c *Container) Err() error {
	return c.err
}

// Dropped is the number of persisted entries that could not be resolved to an item.
func (c *Container) Dropped() int {
	return c.dropped
}

func (c *Container) Duplicates() int {
	return c.duplicates
}

func (c *Container) Outcome() Outcome {
	switch {
	case c.Len() == 0:
		return OutcomeEmpty
	case c.dropped > 0:
		return OutcomePartial
	default:
		return OutcomeFull
	}
}

func (c *Container) Len() int {
	return len(c.index)
}

// Items returns the distinct items in persisted order.
func (c *Container) Items() []Item {
	items := make([]Item, 0, len(c.index))
	for _, e := range c.entries {
		if e.item == nil || e.dup {
			continue
		}
		items = append(items, *e.item)
	}
	return items
}

func (c *Container) Keys() []Key {
	items := c.Items()
	keys := make([]Key, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key)
	}
	return keys
}

func (c *Container) Has(k Key) bool {
	_, ok := c.index[k]
	return ok
}

func (c *Container) Get(k Key) (Item, bool) {
	i, ok := c.index[k]
	if !ok {
		return Item{}, false
	}
	return *c.entries[i].item, true
}

// Find returns the first item matching fn.
func (c *Container) Find(fn func(Item) bool) (Item, bool) {
	for _, e := range c.entries {
		if e.item == nil || e.dup {
			continue
		}
		if fn(*e.item) {
			return *e.item, true
		}
	}
	return Item{}, false
}

// Remove deletes every persisted occurrence of k and returns the canonical one.
func (c *Container) Remove(k Key) (Item, bool) {
	i, ok := c.index[k]
	if !ok {
		return Item{}, false
	}
	removed := *c.entries[i].item

	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.item != nil && e.item.Key == k {
			continue
		}
		kept = append(kept, e)
	}
	c.entries = kept
	c.reindex()
	return removed, true
}

// Add appends an item, keeping its persisted payload. It is a no-op when the key is present.
func (c *Container) Add(it Item) bool {
	if c.Has(it.Key) {
		return false
	}

	e := entry{}
	switch c.shape {
	case ShapeObjectMap, ShapeWrappedMap:
		e.name = it.RawKey
		if e.name == "" {
			e.name = string(it.Key)
		}
		e.value = it.Detail
		if firstByte(e.value) != '{' {
			// key-only items carry no payload, the member name holds the identity
			e.name = persistedKey(it)
			e.value = json.RawMessage("{}")
		}
	case ShapeDelimited:
		e.name = persistedKey(it)
	case ShapeNone:
		// a shapeless container becomes the canonical object map
		c.shape = ShapeObjectMap
		return c.Add(it)
	default:
		e.value = withIdentity(it)
	}

	item := it
	e.item = &item
	c.index[it.Key] = len(c.entries)
	c.entries = append(c.entries, e)
	return true
}

// Shapeless reports whether the container carries no encoding of its own worth preserving:
// null, unparseable, or an empty object without metadata.
func (c *Container) Shapeless() bool {
	if c.shape == ShapeNone {
		return true
	}
	return c.shape == ShapeObjectMap && len(c.entries) == 0
}

// AdoptShape copies the encoding (but not the content) of src into a shapeless container.
func (c *Container) AdoptShape(src *Container) {
	if !c.Shapeless() || src == nil || src.Shapeless() {
		return
	}
	c.shape = src.shape
	c.field = src.field
	c.delim = src.delim
	c.double = src.double
	if src.field != "" {
		c.outer = []member{{name: src.field, value: json.RawMessage("[]")}}
	}
}

// Encode writes the container back in the shape it was read in.
func (c *Container) Encode() (json.RawMessage, error) {
	out, err := c.encode()
	if err != nil {
		return nil, err
	}
	if c.double {
		return json.Marshal(string(out))
	}
	return out, nil
}

func (c *Container) encode() (json.RawMessage, error) {
	switch c.shape {
	case ShapeObjectMap:
		return encodeObject(c.members())
	case ShapeWrappedMap, ShapeWrappedArray:
		var inner json.RawMessage
		if c.shape == ShapeWrappedMap {
			var err error
			if inner, err = encodeObject(c.members()); err != nil {
				return nil, err
			}
		} else {
			inner = encodeArray(c.values())
		}
		outer := make([]member, 0, len(c.outer))
		for _, m := range c.outer {
			if m.name == c.field {
				m.value = inner
			}
			outer = append(outer, m)
		}
		return encodeObject(outer)
	case ShapeArray:
		return encodeArray(c.values()), nil
	case ShapeDelimited:
		tokens := make([]string, 0, len(c.entries))
		for _, e := range c.entries {
			tokens = append(tokens, e.name)
		}
		delim := c.delim
		if delim == "" {
			delim = ","
		}
		return json.Marshal(strings.Join(tokens, delim))
	default:
		return json.RawMessage("null"), nil
	}
}

func (c *Container) members() []member {
	members := make([]member, 0, len(c.entries))
	for _, e := range c.entries {
		members = append(members, member{name: e.name, value: e.value})
	}
	return members
}

func (c *Container) values() []json.RawMessage {
	values := make([]json.RawMessage, 0, len(c.entries))
	for _, e := range c.entries {
		values = append(values, e.value)
	}
	return values
}

// BlockNames reads the optional blockNames metadata: either a list (index 0 is block 1)
// or an object keyed by block ordinal.
func (c *Container) BlockNames() map[int]string {
	var raw json.RawMessage
	for _, m := range c.outer {
		if m.name == "blockNames" {
			raw = m.value
		}
	}
	for _, e := range c.entries {
		if e.item == nil && e.name == "blockNames" {
			raw = e.value
		}
	}
	return parseBlockNames(raw)
}

func parseBlockNames(raw json.RawMessage) map[int]string {
	names := make(map[int]string)
	switch firstByte(raw) {
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return names
		}
		for i, name := range list {
			if name != "" {
				names[i+1] = name
			}
		}
	case '{':
		members, err := decodeObject(raw)
		if err != nil {
			return names
		}
		for _, m := range members {
			block, ok := parseNumber(m.name)
			if !ok {
				continue
			}
			var name string
			if err := json.Unmarshal(m.value, &name); err == nil && name != "" {
				names[int(block)] = name
			}
		}
	}
	return names
}

func canonicalDetail(it Item) json.RawMessage {
	out, _ := json.Marshal(struct {
		ID    int64 `json:"id"`
		Block int   `json:"block"`
		Order int   `json:"order"`
	}{it.ID, it.Block, it.Order})
	return out
}

// keyField marks array elements whose identity is not part of the item payload.
// It is always the last member and is stripped again when the item is read.
const keyField = "_key"

// persistedKey is the persisted key string of it: the original one when it still resolves to
// the same key, so legacy short keys survive a move.
func persistedKey(it Item) string {
	if it.RawKey != "" && !strings.ContainsFunc(it.RawKey, isDelimiter) {
		if id, block, order, _, ok := ParseKey(it.RawKey); ok && NewKey(id, block, order) == it.Key {
			return it.RawKey
		}
	}
	return string(it.Key)
}

// withIdentity returns the element to store in an array shape. Objects that resolve to
// the item key by their own fields are stored verbatim, other objects get a trailing
// key marker, and payload-less items are stored as key strings.
func withIdentity(it Item) json.RawMessage {
	if firstByte(it.Detail) != '{' {
		out, _ := json.Marshal(persistedKey(it))
		return out
	}
	if !it.Short {
		if id, block, order, ok := itemIdentity(it.Detail); ok && NewKey(id, block, order) == it.Key {
			return it.Detail
		}
	}
	return appendKeyMarker(it.Detail, persistedKey(it))
}

func appendKeyMarker(detail json.RawMessage, tok string) json.RawMessage {
	trimmed := bytes.TrimSpace(detail)
	body := trimmed[:len(trimmed)-1]
	value, _ := json.Marshal(tok)

	out := make([]byte, 0, len(trimmed)+len(keyField)+len(value)+5)
	out = append(out, body...)
	if len(bytes.TrimSpace(body)) > 1 {
		out = append(out, ',')
	}
	out = append(out, '"')
	out = append(out, keyField...)
	out = append(out, '"', ':')
	out = append(out, value...)
	out = append(out, '}')
	return out
}

// splitKeyMarker undoes appendKeyMarker, returning the payload bytes as they were before
// the marker was added.
func splitKeyMarker(raw json.RawMessage) (json.RawMessage, string, bool) {
	trimmed := bytes.TrimSpace(raw)
	members, err := decodeObject(trimmed)
	if err != nil || len(members) == 0 {
		return nil, "", false
	}
	last := members[len(members)-1]
	if last.name != keyField {
		return nil, "", false
	}
	var tok string
	if err := json.Unmarshal(last.value, &tok); err != nil {
		return nil, "", false
	}

	suffix := append([]byte(`"`+keyField+`":`), last.value...)
	suffix = append(suffix, '}')
	if !bytes.HasSuffix(trimmed, suffix) {
		// marker written by hand, fall back to re-encoding the remaining members
		detail, err := encodeObject(members[:len(members)-1])
		if err != nil {
			return nil, "", false
		}
		return detail, tok, true
	}

	head := trimmed[:len(trimmed)-len(suffix)]
	if len(members) > 1 {
		head = bytes.TrimSuffix(head, []byte(","))
	}
	detail := make([]byte, 0, len(head)+1)
	detail = append(detail, head...)
	detail = append(detail, '}')
	return detail, tok, true
}

func detectDelimiter(s string) string {
	for _, d := range []string{",", ";", "|"} {
		if strings.Contains(s, d) {
			return d
		}
	}
	return " "
}

func isDelimiter(r rune) bool {
	switch r {
	case ',', ';', '|', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
