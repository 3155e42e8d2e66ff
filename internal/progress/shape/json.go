package shape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// historical field names, first match wins
var (
	itemsFields = []string{"items", "ejercicios", "comidas", "exercises", "meals"}
	idFields    = []string{"id", "itemId", "item_id", "id_ejercicio", "ejercicio_id", "exerciseId", "id_comida", "comida_id", "mealId"}
	blockFields = []string{"block", "bloque"}
	orderFields = []string{"order", "orden"}
	metaFields  = map[string]bool{
		"blockCount": true,
		"blockNames": true,
	}
)

type member struct {
	name  string
	value json.RawMessage
}

// decodeObject decodes a JSON object keeping its members in document order.
func decodeObject(raw []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not a json object")
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode member [%s]: %w", name, err)
		}
		members = append(members, member{name: name, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}

func encodeObject(members []member) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(m.name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if len(m.value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(m.value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeArray(values []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(v)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func lookupMember(members []member, names []string) (json.RawMessage, bool) {
	for _, name := range names {
		for _, m := range members {
			if m.name == name {
				return m.value, true
			}
		}
	}
	return nil, false
}

// Number reads an integer from a JSON number or a numeric JSON string.
func Number(raw json.RawMessage) (int64, bool) {
	if isNull(raw) {
		return 0, false
	}
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		return parseNumber(s)
	default:
		return parseNumber(string(bytes.TrimSpace(raw)))
	}
}

// Float reads a float from a JSON number or a numeric JSON string.
func Float(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	s := string(bytes.TrimSpace(raw))
	if firstByte(raw) == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	// numbers written by clients as floats, e.g. 10.0
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// itemIdentity extracts (id, block, order) from an item object.
// All three must be present and numeric, and the id positive.
func itemIdentity(raw json.RawMessage) (id int64, block, order int, ok bool) {
	if firstByte(raw) != '{' {
		return 0, 0, 0, false
	}
	members, err := decodeObject(raw)
	if err != nil {
		return 0, 0, 0, false
	}
	return identityFromMembers(members)
}

func identityFromMembers(members []member) (id int64, block, order int, ok bool) {
	idRaw, ok := lookupMember(members, idFields)
	if !ok {
		return 0, 0, 0, false
	}
	blockRaw, ok := lookupMember(members, blockFields)
	if !ok {
		return 0, 0, 0, false
	}
	orderRaw, ok := lookupMember(members, orderFields)
	if !ok {
		return 0, 0, 0, false
	}

	idNum, okID := Number(idRaw)
	blockNum, okBlock := Number(blockRaw)
	orderNum, okOrder := Number(orderRaw)
	if !okID || !okBlock || !okOrder || idNum <= 0 {
		return 0, 0, 0, false
	}
	return idNum, int(blockNum), int(orderNum), true
}

// ItemID reads only the item id of an item object, for callers that match on id alone.
func ItemID(raw json.RawMessage) (int64, bool) {
	if firstByte(raw) != '{' {
		return 0, false
	}
	members, err := decodeObject(raw)
	if err != nil {
		return 0, false
	}
	idRaw, ok := lookupMember(members, idFields)
	if !ok {
		return 0, false
	}
	id, ok := Number(idRaw)
	return id, ok && id > 0
}
