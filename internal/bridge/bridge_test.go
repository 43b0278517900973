package bridge

import (
	"strings"
	"testing"
)

func TestFragmentsCompleteWithEnvelopes(t *testing.T) {
	frags := Fragments()
	want := []string{FragAssignTags, FragMoveTask, FragMoveProject, FragSetRepetition, FragBulkEffective}
	if len(frags) != len(want) {
		t.Fatalf("expected %d fragments, got %d", len(want), len(frags))
	}
	for _, name := range want {
		src, ok := frags[name]
		if !ok {
			t.Fatalf("missing fragment %q", name)
		}
		if !strings.Contains(src, "__bargs") {
			t.Errorf("fragment %q never reads its arguments", name)
		}
		if !strings.Contains(src, "JSON.stringify({ok:true") {
			t.Errorf("fragment %q has no success completion value", name)
		}
		if strings.Contains(src, "${") {
			t.Errorf("fragment %q uses template interpolation; arguments must come from __bargs", name)
		}
	}
}

func TestRepetitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		rep     Repetition
		wantErr bool
	}{
		{"weekly fixed", Repetition{Rule: "FREQ=WEEKLY", Method: RepeatFixed}, false},
		{"lowercase freq", Repetition{Rule: "freq=daily;interval=2", Method: RepeatDueAfterCompletion}, false},
		{"defer anchored", Repetition{Rule: "FREQ=MONTHLY", Method: RepeatDeferAfterCompletion}, false},
		{"empty rule", Repetition{Rule: "   ", Method: RepeatFixed}, true},
		{"no freq clause", Repetition{Rule: "INTERVAL=2", Method: RepeatFixed}, true},
		{"unknown method", Repetition{Rule: "FREQ=WEEKLY", Method: "sometimes"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRepetitionArgsUsesSecondaryMethodNames(t *testing.T) {
	args := Repetition{Rule: " FREQ=WEEKLY ", Method: RepeatDeferAfterCompletion}.Args("abc123")
	if args["taskId"] != "abc123" {
		t.Errorf("expected taskId abc123, got %v", args["taskId"])
	}
	if args["rule"] != "FREQ=WEEKLY" {
		t.Errorf("expected trimmed rule, got %q", args["rule"])
	}
	if args["method"] != "DeferUntilDate" {
		t.Errorf("expected DeferUntilDate, got %v", args["method"])
	}
}

func TestClearRepetitionArgs(t *testing.T) {
	args := ClearRepetitionArgs("abc123")
	if args["clear"] != true {
		t.Errorf("expected clear flag, got %v", args["clear"])
	}
	if args["taskId"] != "abc123" {
		t.Errorf("expected taskId abc123, got %v", args["taskId"])
	}
}

func TestMoveTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  MoveTarget
		wantErr bool
	}{
		{"inbox", MoveTarget{ToInbox: true}, false},
		{"project", MoveTarget{ProjectID: "p1"}, false},
		{"parent task", MoveTarget{ParentTaskID: "t1"}, false},
		{"empty", MoveTarget{}, true},
		{"ambiguous", MoveTarget{ToInbox: true, ProjectID: "p1"}, true},
		{"doubly ambiguous", MoveTarget{ProjectID: "p1", ParentTaskID: "t1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMoveTargetArgs(t *testing.T) {
	args := MoveTarget{ProjectID: "p9"}.Args("t4")
	if args["projectId"] != "p9" || args["taskId"] != "t4" {
		t.Errorf("unexpected args: %v", args)
	}
	if _, ok := args["toInbox"]; ok {
		t.Errorf("unset fields should be omitted, got %v", args)
	}
}
