package shape

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the canonical composite key of one scheduled item occurrence: "itemId_block_order".
type Key string

func NewKey(id int64, block, order int) Key {
	return Key(fmt.Sprintf("%d_%d_%d", id, block, order))
}

// Parts splits a canonical key. Keys not in the 3-part form are rejected.
func (k Key) Parts() (id int64, block, order int, ok bool) {
	parts := strings.Split(string(k), "_")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	id, block, order, _, ok = parseKeyParts(parts)
	return id, block, order, ok
}

func (k Key) String() string {
	return string(k)
}

// ParseKey parses a persisted key string. Supported forms:
//   - id_block_order
//   - id_order (legacy, block defaults to 1)
//   - id (block and order default to 1)
//
// short reports whether block was absent from the persisted form.
func ParseKey(s string) (id int64, block, order int, short bool, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, 0, false, false
	}
	return parseKeyParts(strings.Split(s, "_"))
}

func parseKeyParts(parts []string) (id int64, block, order int, short bool, ok bool) {
	nums := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0, 0, 0, false, false
		}
		nums = append(nums, n)
	}
	if nums[0] <= 0 {
		return 0, 0, 0, false, false
	}

	switch len(nums) {
	case 1:
		return nums[0], 1, 1, true, true
	case 2:
		return nums[0], 1, int(nums[1]), true, true
	case 3:
		return nums[0], int(nums[1]), int(nums[2]), false, true
	default:
		return 0, 0, 0, false, false
	}
}

// LookupKeys returns the progressively looser keys auxiliary metadata may be stored under:
// exact 3-tuple, id_order, id_block, bare id.
func LookupKeys(id int64, block, order int) []string {
	return []string{
		fmt.Sprintf("%d_%d_%d", id, block, order),
		fmt.Sprintf("%d_%d", id, order),
		fmt.Sprintf("%d_%d", id, block),
		strconv.FormatInt(id, 10),
	}
}

// ShortKey is the legacy fitness form "id_order" without the block.
func ShortKey(id int64, order int) string {
	return fmt.Sprintf("%d_%d", id, order)
}
