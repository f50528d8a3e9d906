package taskinfo

import (
	"fmt"
	"testing"
	"time"
)

func TestCurrencyMemoExpiry(t *testing.T) {
	now := time.Now()
	memo := newCurrencyMemo(4, 20*time.Second)
	memo.now = func() time.Time { return now }

	key := memoKey{taskID: "a", path: "p"}
	memo.put(key, true)
	if v, ok := memo.get(key); !ok || !v {
		t.Fatalf("fresh entry missing: %v %v", v, ok)
	}

	now = now.Add(21 * time.Second)
	if _, ok := memo.get(key); ok {
		t.Fatalf("expired entry must not be served")
	}
}

func TestCurrencyMemoEvictsAtCapacity(t *testing.T) {
	now := time.Now()
	memo := newCurrencyMemo(2, time.Minute)
	memo.now = func() time.Time { return now }

	memo.put(memoKey{taskID: "a"}, true)
	now = now.Add(time.Second)
	memo.put(memoKey{taskID: "b"}, true)
	now = now.Add(time.Second)
	memo.put(memoKey{taskID: "c"}, true) // evicts "a", the soonest to expire

	if _, ok := memo.get(memoKey{taskID: "a"}); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	for _, id := range []string{"b", "c"} {
		if _, ok := memo.get(memoKey{taskID: id}); !ok {
			t.Fatalf("entry %q should survive eviction", id)
		}
	}
	if len(memo.entries) > 2 {
		t.Fatalf("capacity exceeded: %d", len(memo.entries))
	}
}

func TestCurrencyMemoInvalidate(t *testing.T) {
	memo := newCurrencyMemo(8, time.Minute)
	for i := 0; i < 3; i++ {
		memo.put(memoKey{taskID: "a", path: fmt.Sprintf("p%d", i)}, true)
	}
	memo.put(memoKey{taskID: "b", path: "q"}, false)

	memo.invalidate("a")
	for i := 0; i < 3; i++ {
		if _, ok := memo.get(memoKey{taskID: "a", path: fmt.Sprintf("p%d", i)}); ok {
			t.Fatalf("invalidate must clear every path of the task")
		}
	}
	if _, ok := memo.get(memoKey{taskID: "b", path: "q"}); !ok {
		t.Fatalf("other tasks must be untouched")
	}
}
