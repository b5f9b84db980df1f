package memory

import (
	"strconv"
	"sync/atomic"
)

// Knowledge memory IDs are positive integers in [1, 333333] (spec.md
// §3/§6), kept disjoint from the reflection collection's range so the
// two collections' IDs can never collide.
const (
	knowledgeIDMin = 1
	knowledgeIDMax = 333333
)

// idSeq is process-wide: every Pipeline instance in a process draws
// from the same counter, so two pipelines (e.g. a test and the
// session's real one) never hand out the same id.
var idSeq atomic.Int64

// nextKnowledgeID allocates the next id in the knowledge range. The
// counter wraps modulo the range width, matching the range spec.md
// mandates; a single process emitting more than 333333 facts would
// begin reusing ids, same as the original bounded-range design.
func nextKnowledgeID() string {
	n := idSeq.Add(1) - 1
	width := int64(knowledgeIDMax - knowledgeIDMin + 1)
	return strconv.FormatInt(knowledgeIDMin+(n%width), 10)
}
