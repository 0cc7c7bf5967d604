package command

import (
	"errors"
	"testing"

	"github.com/tmt-csw/gocsw/pkg/param"
)

func TestParseVerb(t *testing.T) {
	for _, s := range []string{"submit", "oneway", "validate"} {
		v, err := ParseVerb(s)
		if err != nil || string(v) != s {
			t.Errorf("ParseVerb(%q) = %q, %v", s, v, err)
		}
	}
	for _, s := range []string{"", "Submit", "query", "cancel"} {
		if _, err := ParseVerb(s); !errors.Is(err, ErrUnsupportedVerb) {
			t.Errorf("ParseVerb(%q) error = %v, want ErrUnsupportedVerb", s, err)
		}
	}
}

func TestCheckImmediate(t *testing.T) {
	const id = "run-1"
	issue := NewIssue(WrongPrefixIssue, "no")
	tests := []struct {
		verb    Verb
		resp    Response
		hasTask bool
		legal   bool
	}{
		{Validate, Accepted{RunID: id}, false, true},
		{Validate, Invalid{RunID: id, Issue: issue}, false, true},
		{Validate, Locked{RunID: id}, false, true},
		{Validate, Completed{RunID: id}, false, false},
		{Validate, Started{RunID: id}, true, false},
		{Oneway, Accepted{RunID: id}, false, true},
		{Oneway, Invalid{RunID: id, Issue: issue}, false, true},
		{Oneway, Error{RunID: id}, false, false},
		{Oneway, Accepted{RunID: id}, true, false},
		{Submit, Started{RunID: id}, true, true},
		{Submit, Started{RunID: id}, false, false},
		{Submit, Completed{RunID: id}, false, true},
		{Submit, Completed{RunID: id}, true, false},
		{Submit, Error{RunID: id}, false, true},
		{Submit, Invalid{RunID: id, Issue: issue}, false, true},
		{Submit, Locked{RunID: id}, false, true},
		{Submit, Accepted{RunID: id}, false, false},
		{Submit, Completed{RunID: "someone-else"}, false, false},
		{Submit, Invalid{RunID: id, Issue: Issue{Kind: "Whatever"}}, false, false},
		{Submit, nil, false, false},
	}
	for _, tt := range tests {
		err := CheckImmediate(tt.verb, id, tt.resp, tt.hasTask)
		if tt.legal && err != nil {
			t.Errorf("%s %#v task=%v: unexpected error %v", tt.verb, tt.resp, tt.hasTask, err)
		}
		if !tt.legal && !errors.Is(err, ErrContractViolation) {
			t.Errorf("%s %#v task=%v: error = %v, want ErrContractViolation", tt.verb, tt.resp, tt.hasTask, err)
		}
	}

	if err := CheckImmediate("cancel", id, Accepted{RunID: id}, false); !errors.Is(err, ErrUnsupportedVerb) {
		t.Errorf("unknown verb error = %v", err)
	}
}

func TestCheckOutcome(t *testing.T) {
	const id = "run-1"
	for _, resp := range []Response{Completed{RunID: id}, Error{RunID: id, Message: "boom"}} {
		if err := CheckOutcome(id, resp); err != nil {
			t.Errorf("CheckOutcome(%s) = %v", resp.Type(), err)
		}
	}
	for _, resp := range []Response{
		Started{RunID: id},
		Accepted{RunID: id},
		Invalid{RunID: id, Issue: NewIssue(OtherIssue, "x")},
		Locked{RunID: id},
		Completed{RunID: "other"},
		Completed{RunID: id, Result: NewResult(param.New("x", param.IntKey, param.Scalars[float64]{1.5}))},
		nil,
	} {
		if err := CheckOutcome(id, resp); !errors.Is(err, ErrContractViolation) {
			t.Errorf("CheckOutcome(%#v) = %v, want ErrContractViolation", resp, err)
		}
	}

	bad := Completed{RunID: id, Result: NewResult(param.New("m", param.IntMatrixKey, param.Matrices[int32]{{{1, 2}, {3}}}))}
	err := CheckImmediate(Submit, id, bad, false)
	if !errors.Is(err, ErrContractViolation) || !errors.Is(err, param.ErrInvalidParameter) {
		t.Errorf("CheckImmediate with unencodable result = %v", err)
	}
	good := Completed{RunID: id, Result: NewResult(param.New("x", param.IntKey, param.Scalars[int32]{1}))}
	if err := CheckImmediate(Submit, id, good, false); err != nil {
		t.Errorf("CheckImmediate with valid result = %v", err)
	}
}
