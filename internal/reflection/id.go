package reflection

import (
	"strconv"
	"sync/atomic"
)

// Reflection trace IDs occupy a range disjoint from the knowledge
// collection's [1, 333333] (spec.md §3/§6), so a single vector store
// holding both collections never sees a knowledge id collide with a
// reflection id.
const (
	reflectionIDMin = 333334
	reflectionIDMax = 666666
)

var idSeq atomic.Int64

func nextReflectionID() string {
	n := idSeq.Add(1) - 1
	width := int64(reflectionIDMax - reflectionIDMin + 1)
	return strconv.FormatInt(reflectionIDMin+(n%width), 10)
}
