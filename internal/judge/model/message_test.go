package model

import "testing"

func TestValidTaskID(t *testing.T) {
	for _, id := range []string{"aplusb", "task-1", "A.plus.B", "x"} {
		if !ValidTaskID(id) {
			t.Errorf("%q must be accepted", id)
		}
	}
	for _, id := range []string{"", ".", "..", "a/b", `a\b`, "../x", "../../etc/passwd"} {
		if ValidTaskID(id) {
			t.Errorf("%q must be rejected", id)
		}
	}
}
