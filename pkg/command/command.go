// Package command defines control commands, the responses a component may
// give to them, and which responses are legal for each transport verb.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmt-csw/gocsw/pkg/param"
)

// Kind is the command variant carried in the "_type" field.
type Kind string

const (
	Setup   Kind = "Setup"
	Observe Kind = "Observe"
	Wait    Kind = "Wait"
)

func (k Kind) valid() bool { return k == Setup || k == Observe || k == Wait }

var (
	// ErrUnknownVariant rejects a message whose "_type" is not recognised.
	ErrUnknownVariant = fmt.Errorf("%w: unknown variant", param.ErrDecode)
	// ErrUnknownIssue rejects an Invalid response with an unrecognised issue kind.
	ErrUnknownIssue = fmt.Errorf("%w: unknown issue kind", param.ErrDecode)
)

// ControlCommand is a Setup, Observe or Wait command. Prefix names the
// source component; RunID is the sender-assigned correlation id under which
// any asynchronous completion is tracked.
type ControlCommand struct {
	Kind        Kind
	Prefix      string
	CommandName string
	MaybeObsID  string
	ParamSet    param.Set
	RunID       string
}

// NewRunID returns a fresh correlation id.
func NewRunID() string { return uuid.NewString() }

func NewSetup(prefix, commandName, runID string, params ...param.Parameter) ControlCommand {
	return ControlCommand{Kind: Setup, Prefix: prefix, CommandName: commandName, ParamSet: params, RunID: runID}
}

func NewObserve(prefix, commandName, runID string, params ...param.Parameter) ControlCommand {
	return ControlCommand{Kind: Observe, Prefix: prefix, CommandName: commandName, ParamSet: params, RunID: runID}
}

func NewWait(prefix, commandName, runID string, params ...param.Parameter) ControlCommand {
	return ControlCommand{Kind: Wait, Prefix: prefix, CommandName: commandName, ParamSet: params, RunID: runID}
}

// WithObsID returns a copy of c tagged with an observation id.
func (c ControlCommand) WithObsID(obsID string) ControlCommand {
	c.MaybeObsID = obsID
	return c
}

// Get returns the first parameter named keyName.
func (c ControlCommand) Get(keyName string) (param.Parameter, bool) { return c.ParamSet.Get(keyName) }

// Exists reports whether a parameter named keyName is present.
func (c ControlCommand) Exists(keyName string) bool { return c.ParamSet.Exists(keyName) }

func (c ControlCommand) String() string {
	return fmt.Sprintf("%s(%s, %s, runId=%s, %d params)", c.Kind, c.Prefix, c.CommandName, c.RunID, len(c.ParamSet))
}

type commandWire struct {
	Type        Kind      `json:"_type"`
	Prefix      string    `json:"prefix"`
	CommandName string    `json:"commandName"`
	MaybeObsID  string    `json:"maybeObsId,omitempty"`
	ParamSet    param.Set `json:"paramSet"`
	RunID       string    `json:"runId"`
}

type commandRaw struct {
	Type        Kind      `json:"_type"`
	Prefix      *string   `json:"prefix"`
	CommandName *string   `json:"commandName"`
	MaybeObsID  string    `json:"maybeObsId"`
	ParamSet    param.Set `json:"paramSet"`
	RunID       *string   `json:"runId"`
}

func (c ControlCommand) MarshalJSON() ([]byte, error) {
	if !c.Kind.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, c.Kind)
	}
	return json.Marshal(commandWire{
		Type:        c.Kind,
		Prefix:      c.Prefix,
		CommandName: c.CommandName,
		MaybeObsID:  c.MaybeObsID,
		ParamSet:    c.ParamSet,
		RunID:       c.RunID,
	})
}

func (c *ControlCommand) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("%w: command: %v", param.ErrDecode, err)
	}
	if !head.Type.valid() {
		return fmt.Errorf("%w: %q is not a command", ErrUnknownVariant, head.Type)
	}

	var raw commandRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return decodeError("command", err)
	}
	switch {
	case raw.Prefix == nil:
		return fmt.Errorf("%w: command.prefix", param.ErrMissingField)
	case raw.CommandName == nil:
		return fmt.Errorf("%w: command.commandName", param.ErrMissingField)
	case raw.RunID == nil:
		return fmt.Errorf("%w: command.runId", param.ErrMissingField)
	}
	*c = ControlCommand{
		Kind:        raw.Type,
		Prefix:      *raw.Prefix,
		CommandName: *raw.CommandName,
		MaybeObsID:  raw.MaybeObsID,
		ParamSet:    raw.ParamSet,
		RunID:       *raw.RunID,
	}
	return nil
}

// Decode parses a JSON command.
func Decode(data []byte) (ControlCommand, error) {
	var c ControlCommand
	err := json.Unmarshal(data, &c)
	return c, err
}
