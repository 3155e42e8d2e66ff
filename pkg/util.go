package pkg

import (
	"strconv"
	"strings"
	"unsafe"
)

// BytesToString converts bytes slice to a string without extra allocation
func BytesToString(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

// ParseOptionalID parses an optional positive id from a query param value.
// Empty input yields nil.
func ParseOptionalID(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, strconv.ErrRange
	}
	return &id, nil
}
