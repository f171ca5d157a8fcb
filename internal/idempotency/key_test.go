package idempotency

import (
	"strings"
	"testing"
)

func TestKey_DeterministicSegmentSortsParts(t *testing.T) {
	a := Key(ActionCourseAssign, map[string]string{"courseId": "c1", "orgId": "o1"})
	b := Key(ActionCourseAssign, map[string]string{"orgId": "o1", "courseId": "c1"})

	// Same action + parts: everything up to the random suffix must match.
	trim := func(k string) string { return k[:strings.LastIndex(k, ":")] }
	if trim(a) != trim(b) {
		t.Fatalf("prefixes differ: %q vs %q", trim(a), trim(b))
	}
	if trim(a) != "course.assign:courseId=c1;orgId=o1" {
		t.Fatalf("unexpected deterministic segment: %q", trim(a))
	}
}

func TestKey_TwoCallsAlwaysDistinguishable(t *testing.T) {
	parts := map[string]string{"courseId": "c1"}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		k := Key(ActionProgressEvent, parts)
		if seen[k] {
			t.Fatalf("duplicate key generated: %q", k)
		}
		seen[k] = true
	}
}

func TestKey_EmptyParts(t *testing.T) {
	k := Key(ActionCourseSave, nil)
	if !strings.HasPrefix(k, "course.save::") {
		t.Fatalf("expected empty deterministic segment, got %q", k)
	}
}
