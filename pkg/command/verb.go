package command

import (
	"errors"
	"fmt"
)

// Verb is the transport operation a command arrived on.
type Verb string

const (
	Submit   Verb = "submit"
	Oneway   Verb = "oneway"
	Validate Verb = "validate"
)

var (
	ErrUnsupportedVerb   = errors.New("command: unsupported verb")
	ErrContractViolation = errors.New("command: response violates verb contract")
)

// ParseVerb maps a transport method name to a Verb.
func ParseVerb(s string) (Verb, error) {
	switch v := Verb(s); v {
	case Submit, Oneway, Validate:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedVerb, s)
}

var immediate = map[Verb]map[ResponseType]bool{
	Validate: {TypeAccepted: true, TypeInvalid: true, TypeLocked: true},
	Oneway:   {TypeAccepted: true, TypeInvalid: true, TypeLocked: true},
	Submit: {
		TypeStarted:   true,
		TypeCompleted: true,
		TypeError:     true,
		TypeInvalid:   true,
		TypeLocked:    true,
	},
}

// CheckImmediate reports whether resp is a legal immediate answer to the
// command identified by runID on verb. hasTask says whether the handler
// also returned background work, which only submit+Started may do.
func CheckImmediate(verb Verb, runID string, resp Response, hasTask bool) error {
	allowed, ok := immediate[verb]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedVerb, verb)
	}
	if err := checkShape(runID, resp); err != nil {
		return err
	}
	if !allowed[resp.Type()] {
		return fmt.Errorf("%w: %s is not a legal %s response", ErrContractViolation, resp.Type(), verb)
	}
	_, started := resp.(Started)
	switch {
	case started && !hasTask:
		return fmt.Errorf("%w: Started without a task", ErrContractViolation)
	case !started && hasTask:
		return fmt.Errorf("%w: task returned with %s", ErrContractViolation, resp.Type())
	}
	return nil
}

// CheckOutcome reports whether resp is a legal final outcome of a task
// started for runID.
func CheckOutcome(runID string, resp Response) error {
	if err := checkShape(runID, resp); err != nil {
		return err
	}
	switch resp.(type) {
	case Completed, Error:
		return nil
	}
	return fmt.Errorf("%w: %s is not a legal task outcome", ErrContractViolation, resp.Type())
}

func checkShape(runID string, resp Response) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", ErrContractViolation)
	}
	if resp.ID() != runID {
		return fmt.Errorf("%w: response runId %q does not match %q", ErrContractViolation, resp.ID(), runID)
	}
	if inv, ok := resp.(Invalid); ok && !inv.Issue.Kind.Known() {
		return fmt.Errorf("%w: unknown issue kind %q", ErrContractViolation, inv.Issue.Kind)
	}
	if c, ok := resp.(Completed); ok && c.Result != nil {
		if err := c.Result.ParamSet.Validate(); err != nil {
			return fmt.Errorf("%w: result: %w", ErrContractViolation, err)
		}
	}
	return nil
}
