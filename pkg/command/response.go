package command

import (
	"encoding/json"
	"fmt"

	"github.com/tmt-csw/gocsw/pkg/param"
)

// ResponseType is the response variant carried in the "_type" field.
type ResponseType string

const (
	TypeAccepted  ResponseType = "Accepted"
	TypeStarted   ResponseType = "Started"
	TypeCompleted ResponseType = "Completed"
	TypeError     ResponseType = "Error"
	TypeInvalid   ResponseType = "Invalid"
	TypeLocked    ResponseType = "Locked"
)

// Response is one of Accepted, Started, Completed, Error, Invalid or Locked.
// The set is closed; other packages cannot add variants.
type Response interface {
	Type() ResponseType
	// ID returns the runId of the command this response answers.
	ID() string
	isResponse()
}

// Accepted acknowledges a validate or oneway request.
type Accepted struct{ RunID string }

// Started means work continues in the background; the final answer is
// obtained by querying the runId.
type Started struct {
	RunID   string
	Message string
}

// Completed is a successful terminal response, optionally with a result.
type Completed struct {
	RunID  string
	Result *Result
}

// Error is a terminal failure after the command was accepted.
type Error struct {
	RunID   string
	Message string
}

// Invalid rejects a command before any work was done.
type Invalid struct {
	RunID string
	Issue Issue
}

// Locked means the component is locked by another client.
type Locked struct{ RunID string }

func (Accepted) Type() ResponseType  { return TypeAccepted }
func (Started) Type() ResponseType   { return TypeStarted }
func (Completed) Type() ResponseType { return TypeCompleted }
func (Error) Type() ResponseType     { return TypeError }
func (Invalid) Type() ResponseType   { return TypeInvalid }
func (Locked) Type() ResponseType    { return TypeLocked }

func (r Accepted) ID() string  { return r.RunID }
func (r Started) ID() string   { return r.RunID }
func (r Completed) ID() string { return r.RunID }
func (r Error) ID() string     { return r.RunID }
func (r Invalid) ID() string   { return r.RunID }
func (r Locked) ID() string    { return r.RunID }

func (Accepted) isResponse()  {}
func (Started) isResponse()   {}
func (Completed) isResponse() {}
func (Error) isResponse()     {}
func (Invalid) isResponse()   {}
func (Locked) isResponse()    {}

// Result is the optional payload of a Completed response.
type Result struct {
	ParamSet param.Set `json:"paramSet"`
}

// NewResult builds a result from params.
func NewResult(params ...param.Parameter) *Result { return &Result{ParamSet: params} }

// IsTerminal reports whether r ends the command's lifecycle.
func IsTerminal(r Response) bool {
	switch r.(type) {
	case Completed, Error, Invalid, Locked:
		return true
	}
	return false
}

type responseWire struct {
	Type    ResponseType `json:"_type"`
	RunID   string       `json:"runId"`
	Message string       `json:"message,omitempty"`
	Result  *Result      `json:"result,omitempty"`
	Issue   *Issue       `json:"issue,omitempty"`
}

func toWire(r Response) responseWire {
	w := responseWire{Type: r.Type(), RunID: r.ID()}
	switch v := r.(type) {
	case Started:
		w.Message = v.Message
	case Completed:
		w.Result = v.Result
	case Error:
		w.Message = v.Message
	case Invalid:
		issue := v.Issue
		w.Issue = &issue
	}
	return w
}

func (r Accepted) MarshalJSON() ([]byte, error)  { return json.Marshal(toWire(r)) }
func (r Started) MarshalJSON() ([]byte, error)   { return json.Marshal(toWire(r)) }
func (r Completed) MarshalJSON() ([]byte, error) { return json.Marshal(toWire(r)) }
func (r Error) MarshalJSON() ([]byte, error)     { return json.Marshal(toWire(r)) }
func (r Locked) MarshalJSON() ([]byte, error)    { return json.Marshal(toWire(r)) }

func (r Invalid) MarshalJSON() ([]byte, error) {
	if !r.Issue.Kind.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssue, r.Issue.Kind)
	}
	return json.Marshal(toWire(r))
}

// MarshalResponse encodes r as JSON.
func MarshalResponse(r Response) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil response", ErrUnknownVariant)
	}
	return json.Marshal(r)
}

// UnmarshalResponse decodes a JSON response into its concrete variant.
func UnmarshalResponse(data []byte) (Response, error) {
	var raw struct {
		Type    ResponseType `json:"_type"`
		RunID   *string      `json:"runId"`
		Message string       `json:"message"`
		Result  *Result      `json:"result"`
		Issue   *Issue       `json:"issue"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("response", err)
	}
	if raw.RunID == nil {
		return nil, fmt.Errorf("%w: response.runId", param.ErrMissingField)
	}
	id := *raw.RunID

	switch raw.Type {
	case TypeAccepted:
		return Accepted{RunID: id}, nil
	case TypeStarted:
		return Started{RunID: id, Message: raw.Message}, nil
	case TypeCompleted:
		return Completed{RunID: id, Result: raw.Result}, nil
	case TypeError:
		return Error{RunID: id, Message: raw.Message}, nil
	case TypeInvalid:
		if raw.Issue == nil {
			return nil, fmt.Errorf("%w: response.issue", param.ErrMissingField)
		}
		if !raw.Issue.Kind.Known() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownIssue, raw.Issue.Kind)
		}
		return Invalid{RunID: id, Issue: *raw.Issue}, nil
	case TypeLocked:
		return Locked{RunID: id}, nil
	}
	return nil, fmt.Errorf("%w: %q is not a response", ErrUnknownVariant, raw.Type)
}
