package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/riverrun/pregel-go/graph/plan"
)

// idempotencyKeyMetaKey is the Metadata.Writes entry the loop stashes each
// step's computeIdempotencyKey result under, so GetStateHistory lets an
// operator audit exactly which task set and writes produced each
// checkpoint.
const idempotencyKeyMetaKey = "__idempotency_key__"

// computeIdempotencyKey generates a deterministic hash identifying a
// checkpoint commit, generalizing the prior engine's per-state hash (over
// runID + stepID + sorted frontier + state JSON) to the multi-channel
// shape: it now hashes the sorted set of task IDs that ran this step plus
// the channel writes they produced, instead of a single state blob.
//
// Identical execution contexts always produce identical keys. The key is
// stored in the checkpoint's metadata for audit only; no Checkpointer
// backend checks it, so Put does not reject a duplicate commit.
func computeIdempotencyKey(threadID string, step int, tasks []plan.Task, writes map[string]any) (string, error) {
	h := sha256.New()
	h.Write([]byte(threadID))

	stepBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(stepBytes, uint64(step))
	h.Write(stepBytes)

	sorted := make([]plan.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].OrderKey != sorted[j].OrderKey {
			return sorted[i].OrderKey < sorted[j].OrderKey
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, task := range sorted {
		h.Write([]byte(task.ID))
		orderBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(orderBytes, task.OrderKey)
		h.Write(orderBytes)
	}

	writesJSON, err := json.Marshal(writes)
	if err != nil {
		return "", err
	}
	h.Write(writesJSON)

	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
