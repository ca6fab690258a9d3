package dispute

import (
	"encoding/json"
	"fmt"
)

// Choice is a party's decision on the proposed solutions: unset, an explicit
// rejection of all options, or the index of a chosen option. The explicit
// tagged form avoids sentinel comparisons (-1 vs null) leaking into the
// agreement rule.
type Choice struct {
	kind   choiceKind
	option int
}

type choiceKind int

const (
	choiceUnset choiceKind = iota
	choiceReject
	choiceOption
)

// Unset returns the zero Choice; no decision submitted yet.
func Unset() Choice { return Choice{} }

// Reject returns the Choice that declines every proposed solution.
func Reject() Choice { return Choice{kind: choiceReject} }

// Option returns the Choice selecting solution index i.
func Option(i int) (Choice, error) {
	if i < 0 || i >= MaxSolutions {
		return Choice{}, Validationf("solution index %d out of range [0,%d]", i, MaxSolutions-1)
	}
	return Choice{kind: choiceOption, option: i}, nil
}

func (c Choice) IsSet() bool    { return c.kind != choiceUnset }
func (c Choice) IsReject() bool { return c.kind == choiceReject }

// Option returns the selected solution index, if one was chosen.
func (c Choice) Option() (int, bool) {
	if c.kind != choiceOption {
		return 0, false
	}
	return c.option, true
}

// Agrees reports whether two choices select the same non-reject option.
func (c Choice) Agrees(other Choice) bool {
	return c.kind == choiceOption && other.kind == choiceOption && c.option == other.option
}

func (c Choice) String() string {
	switch c.kind {
	case choiceReject:
		return "reject"
	case choiceOption:
		return fmt.Sprintf("option:%d", c.option)
	default:
		return "unset"
	}
}

// The wire form keeps the original encoding for compatibility: null for
// unset, -1 for reject, otherwise the solution index.
func (c Choice) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case choiceUnset:
		return []byte("null"), nil
	case choiceReject:
		return []byte("-1"), nil
	default:
		return json.Marshal(c.option)
	}
}

func (c *Choice) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Unset()
		return nil
	}
	var idx int
	if err := json.Unmarshal(data, &idx); err != nil {
		return err
	}
	if idx == -1 {
		*c = Reject()
		return nil
	}
	parsed, err := Option(idx)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
