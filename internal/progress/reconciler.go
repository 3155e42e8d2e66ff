package progress

import (
	"fmt"

	"github.com/2beens/coachprogress/internal/progress/shape"
)

type ToggleOutcome struct {
	Record    Record
	Completed bool
	Key       shape.Key
	// Matched is the key the item was persisted under, it differs from Key for legacy rows.
	Matched shape.Key
}

// Toggle moves one item between the pending and completed containers of rec and returns
// the record with both containers re-encoded in their original shapes. The item detail
// payload is moved verbatim. Persisting the record is up to the caller.
func Toggle(rec Record, itemID int64, block, order int) (ToggleOutcome, error) {
	key := shape.NewKey(itemID, block, order)
	pending := shape.Parse(rec.Pending)
	completed := shape.Parse(rec.Completed)

	match := func(c *shape.Container) (shape.Item, bool) {
		if it, ok := c.Get(key); ok {
			return it, true
		}
		if rec.Category() != CategoryFitness {
			return shape.Item{}, false
		}
		// older fitness rows keyed items by "id_order" only
		return c.Find(func(it shape.Item) bool {
			return it.Short && it.ID == itemID && it.Order == order
		})
	}

	src, dst := pending, completed
	nowCompleted := true
	found, ok := match(pending)
	if !ok {
		if found, ok = match(completed); !ok {
			return ToggleOutcome{}, &ItemNotFoundError{
				RecordID:      rec.ID,
				Table:         rec.Table,
				Key:           key,
				PendingKeys:   pending.Keys(),
				CompletedKeys: completed.Keys(),
			}
		}
		src, dst = completed, pending
		nowCompleted = false
	}

	dst.AdoptShape(src)
	removed, _ := src.Remove(found.Key)
	dst.Add(removed)

	pendingRaw, err := pending.Encode()
	if err != nil {
		return ToggleOutcome{}, fmt.Errorf("encode pending: %w", err)
	}
	completedRaw, err := completed.Encode()
	if err != nil {
		return ToggleOutcome{}, fmt.Errorf("encode completed: %w", err)
	}

	rec.Pending = pendingRaw
	rec.Completed = completedRaw
	return ToggleOutcome{
		Record:    rec,
		Completed: nowCompleted,
		Key:       key,
		Matched:   found.Key,
	}, nil
}
