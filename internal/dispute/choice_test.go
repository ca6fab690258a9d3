package dispute

import (
	"encoding/json"
	"testing"
)

func TestChoiceSemantics(t *testing.T) {
	if Unset().IsSet() {
		t.Error("Unset must not be set")
	}
	if !Reject().IsSet() {
		t.Error("Reject is a submitted decision")
	}
	if !Reject().IsReject() {
		t.Error("Expected IsReject=true")
	}

	opt, err := Option(2)
	if err != nil {
		t.Fatalf("Option(2) failed: %v", err)
	}
	if idx, ok := opt.Option(); !ok || idx != 2 {
		t.Errorf("Expected option index 2, got %d (ok=%v)", idx, ok)
	}

	if _, err := Option(-1); !IsKind(err, KindValidation) {
		t.Errorf("Expected validation error for negative index, got %v", err)
	}
	if _, err := Option(MaxSolutions); !IsKind(err, KindValidation) {
		t.Errorf("Expected validation error for index >= %d, got %v", MaxSolutions, err)
	}
}

func TestChoiceAgrees(t *testing.T) {
	a, _ := Option(1)
	b, _ := Option(1)
	c, _ := Option(0)

	if !a.Agrees(b) {
		t.Error("Same option must agree")
	}
	if a.Agrees(c) {
		t.Error("Different options must not agree")
	}
	if Reject().Agrees(Reject()) {
		t.Error("Two rejects are not an agreement")
	}
	if a.Agrees(Unset()) || Unset().Agrees(Unset()) {
		t.Error("Unset never agrees")
	}
}

func TestChoiceWireFormat(t *testing.T) {
	cases := []struct {
		choice Choice
		wire   string
	}{
		{Unset(), "null"},
		{Reject(), "-1"},
	}
	opt, _ := Option(2)
	cases = append(cases, struct {
		choice Choice
		wire   string
	}{opt, "2"})

	for _, tc := range cases {
		data, err := json.Marshal(tc.choice)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", tc.choice, err)
		}
		if string(data) != tc.wire {
			t.Errorf("Expected %s to encode as %s, got %s", tc.choice, tc.wire, data)
		}

		var back Choice
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", data, err)
		}
		if back != tc.choice {
			t.Errorf("Round trip changed %s into %s", tc.choice, back)
		}
	}

	var invalid Choice
	if err := json.Unmarshal([]byte("99"), &invalid); err == nil {
		t.Error("Expected error for out-of-range wire index")
	}
	if err := json.Unmarshal([]byte(`"yes"`), &invalid); err == nil {
		t.Error("Expected error for non-numeric wire value")
	}
}
