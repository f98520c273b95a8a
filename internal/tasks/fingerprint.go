package tasks

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/starford/laguz/internal/models"
)

// Fingerprint hashes the semantically relevant fields of a task row:
// status, priority, scheduling fields, next-action flag, ordering key,
// project association, and item text. Timestamps are deliberately excluded
// so that re-extraction of an unchanged note produces an identical
// fingerprint. Per-field hashes are combined with XOR, making the result
// independent of field order.
//
// The hash is short and non-cryptographic; a collision costs one missed
// update, never corruption.
func Fingerprint(r models.TaskRow) string {
	var h uint64
	h ^= xxhash.Sum64String("status=" + string(r.Status))
	h ^= xxhash.Sum64String("prio=" + string(r.Priority))
	h ^= xxhash.Sum64String("sched=" + r.ScheduledDay)
	h ^= xxhash.Sum64String("due=" + r.DueDay)
	h ^= xxhash.Sum64String("next=" + strconv.FormatBool(r.NextAction))
	h ^= xxhash.Sum64String("ord=" + strconv.Itoa(r.OrderKey))
	h ^= xxhash.Sum64String("proj=" + r.ProjectID)
	h ^= xxhash.Sum64String("text=" + r.Text)
	return fmt.Sprintf("%016x", h)
}
