// Package event defines the events components publish to the event service
// and their JSON and CBOR encodings.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/tmt-csw/gocsw/pkg/param"
)

// Kind is the event variant carried in the "_type" field.
type Kind string

const (
	SystemEvent  Kind = "SystemEvent"
	ObserveEvent Kind = "ObserveEvent"
)

func (k Kind) valid() bool { return k == SystemEvent || k == ObserveEvent }

// InvalidID marks an event that stands in for one that was never published.
const InvalidID = "-1"

var ErrUnknownVariant = fmt.Errorf("%w: unknown event variant", param.ErrDecode)

// Event is a timestamped parameter set published by Source under EventName.
type Event struct {
	Kind      Kind
	EventID   string
	Source    string
	EventName string
	EventTime param.Timestamp
	ParamSet  param.Set
}

func newEvent(kind Kind, source, eventName string, params []param.Parameter) Event {
	return Event{
		Kind:      kind,
		EventID:   uuid.NewString(),
		Source:    source,
		EventName: eventName,
		EventTime: param.Now(),
		ParamSet:  params,
	}
}

func NewSystemEvent(source, eventName string, params ...param.Parameter) Event {
	return newEvent(SystemEvent, source, eventName, params)
}

func NewObserveEvent(source, eventName string, params ...param.Parameter) Event {
	return newEvent(ObserveEvent, source, eventName, params)
}

// Invalid returns the placeholder event for key, which is reported when
// nothing has been published under it yet.
func Invalid(key string) Event {
	source, name := SplitKey(key)
	return Event{Kind: SystemEvent, EventID: InvalidID, Source: source, EventName: name}
}

// IsInvalid reports whether e is a placeholder rather than a published event.
func (e Event) IsInvalid() bool { return e.EventID == InvalidID }

// Key is the event service key: source + "." + eventName.
func (e Event) Key() string { return e.Source + "." + e.EventName }

// SplitKey separates an event key into source prefix and event name at the
// last dot.
func SplitKey(key string) (source, eventName string) {
	i := strings.LastIndexByte(key, '.')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func (e Event) Get(keyName string) (param.Parameter, bool) { return e.ParamSet.Get(keyName) }
func (e Event) Exists(keyName string) bool                 { return e.ParamSet.Exists(keyName) }

type wireEvent struct {
	Type      Kind            `json:"_type"`
	EventID   string          `json:"eventId"`
	Source    string          `json:"source"`
	EventName string          `json:"eventName"`
	EventTime param.Timestamp `json:"eventTime"`
	ParamSet  param.Set       `json:"paramSet"`
}

type rawEvent struct {
	Type      Kind             `json:"_type"`
	EventID   *string          `json:"eventId"`
	Source    *string          `json:"source"`
	EventName *string          `json:"eventName"`
	EventTime *param.Timestamp `json:"eventTime"`
	ParamSet  param.Set        `json:"paramSet"`
}

func (e Event) wire() (wireEvent, error) {
	if !e.Kind.valid() {
		return wireEvent{}, fmt.Errorf("%w: %q", ErrUnknownVariant, e.Kind)
	}
	return wireEvent{
		Type:      e.Kind,
		EventID:   e.EventID,
		Source:    e.Source,
		EventName: e.EventName,
		EventTime: e.EventTime,
		ParamSet:  e.ParamSet,
	}, nil
}

func (e *Event) fromRaw(raw rawEvent) error {
	if !raw.Type.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, raw.Type)
	}
	switch {
	case raw.EventID == nil:
		return fmt.Errorf("%w: event.eventId", param.ErrMissingField)
	case raw.Source == nil:
		return fmt.Errorf("%w: event.source", param.ErrMissingField)
	case raw.EventName == nil:
		return fmt.Errorf("%w: event.eventName", param.ErrMissingField)
	case raw.EventTime == nil:
		return fmt.Errorf("%w: event.eventTime", param.ErrMissingField)
	}
	*e = Event{
		Kind:      raw.Type,
		EventID:   *raw.EventID,
		Source:    *raw.Source,
		EventName: *raw.EventName,
		EventTime: *raw.EventTime,
		ParamSet:  raw.ParamSet,
	}
	return nil
}

func decodeError(err error) error {
	if errors.Is(err, param.ErrDecode) {
		return err
	}
	return fmt.Errorf("%w: event: %v", param.ErrDecode, err)
}

func (e Event) MarshalJSON() ([]byte, error) {
	w, err := e.wire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return decodeError(err)
	}
	return e.fromRaw(raw)
}

func (e Event) MarshalCBOR() ([]byte, error) {
	w, err := e.wire()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(w)
}

func (e *Event) UnmarshalCBOR(data []byte) error {
	var raw rawEvent
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return decodeError(err)
	}
	return e.fromRaw(raw)
}

// MarshalBinary encodes e as CBOR, the event service storage format.
func (e Event) MarshalBinary() ([]byte, error) { return e.MarshalCBOR() }

// UnmarshalEvent decodes a CBOR-encoded event.
func UnmarshalEvent(data []byte) (Event, error) {
	var e Event
	if err := e.UnmarshalCBOR(data); err != nil {
		return Event{}, err
	}
	return e, nil
}
