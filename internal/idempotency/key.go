// Package idempotency builds the stable keys the server uses to deduplicate
// retried mutations. A key is generated exactly once per logical action and
// stored on the queue item; retries reuse the stored value verbatim. The
// generator itself is stateless and must not be called again for an item
// that already has a key.
package idempotency

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Action is the closed set of mutation tags a key can be built for.
type Action string

const (
	ActionCourseAssign     Action = "course.assign"
	ActionCourseSave       Action = "course.save"
	ActionProgressEvent    Action = "progress.event"
	ActionProgressSnapshot Action = "progress.snapshot"
)

// fallbackSeq disambiguates keys generated within the same nanosecond when
// crypto/rand is unavailable.
var fallbackSeq atomic.Uint64

// Key returns "<action>:<k1=v1;k2=v2>:<suffix>". The middle segment is
// deterministic (pairs sorted by key) so two keys for the same submission
// context are comparable by prefix. The suffix is 8 random bytes, which makes
// any two generated keys distinguishable even for identical contexts.
func Key(action Action, parts map[string]string) string {
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+parts[k])
	}

	return string(action) + ":" + strings.Join(pairs, ";") + ":" + suffix()
}

func suffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	// crypto/rand failed; time plus a process-local counter is still unique
	// within this client, which is all the dedup scheme needs.
	return fmt.Sprintf("t%x-%x", time.Now().UnixNano(), fallbackSeq.Add(1))
}
