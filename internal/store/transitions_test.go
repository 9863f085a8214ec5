package store

import "testing"

func TestValidTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"call", "WAITING", true},
		{"call", "CALLING", false},
		{"call", "COMPLETED", false},
		{"recall", "CALLING", true},
		{"recall", "WAITING", false},
		{"start_consultation", "CALLING", true},
		{"start_consultation", "WAITING", false},
		{"complete", "CONSULTING", true},
		{"complete", "CALLING", false},
		{"cancel", "WAITING", true},
		{"cancel", "CALLING", true},
		{"cancel", "CONSULTING", true},
		{"cancel", "NO_SHOW", false},
		{"cancel", "CANCELLED", false},
		{"no_show", "CALLING", true},
		{"no_show", "WAITING", false},
		{"no_show", "CONSULTING", false},
		{"unknown", "WAITING", false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestTerminalStatusesHaveNoExit(t *testing.T) {
	for _, from := range []string{"COMPLETED", "CANCELLED", "NO_SHOW"} {
		for action := range transitionMap {
			if ValidTransition(action, from) {
				t.Fatalf("terminal status %s allows %s", from, action)
			}
		}
	}
}

func TestActionFor(t *testing.T) {
	cases := []struct {
		from   string
		to     string
		action string
		ok     bool
	}{
		{"WAITING", "CALLING", "call", true},
		{"CALLING", "CALLING", "recall", true},
		{"CALLING", "CONSULTING", "start_consultation", true},
		{"CONSULTING", "COMPLETED", "complete", true},
		{"WAITING", "CANCELLED", "cancel", true},
		{"CALLING", "NO_SHOW", "no_show", true},
		{"CALLING", "WAITING", "", false},
	}
	for _, tt := range cases {
		action, ok := ActionFor(tt.from, tt.to)
		if action != tt.action || ok != tt.ok {
			t.Fatalf("ActionFor(%q, %q)=(%q, %v), want (%q, %v)", tt.from, tt.to, action, ok, tt.action, tt.ok)
		}
	}
}
