package command

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/tmt-csw/gocsw/pkg/param"
)

func TestResponseRoundTrip(t *testing.T) {
	responses := []Response{
		Accepted{RunID: "r1"},
		Started{RunID: "r2", Message: "Long running task in progress..."},
		Completed{RunID: "r3"},
		Completed{RunID: "r4", Result: NewResult(param.New("myValue", param.DoubleKey, param.Scalars[float64]{42}))},
		Error{RunID: "r5", Message: "Error command received"},
		Invalid{RunID: "r6", Issue: NewIssue(MissingKeyIssue, "Missing required key XXX")},
		Locked{RunID: "r7"},
	}
	for _, resp := range responses {
		data, err := MarshalResponse(resp)
		if err != nil {
			t.Fatalf("marshal %#v: %v", resp, err)
		}
		got, err := UnmarshalResponse(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !reflect.DeepEqual(got, resp) {
			t.Errorf("round trip mismatch:\n got  %#v\n want %#v", got, resp)
		}
	}
}

func TestResponseWireShape(t *testing.T) {
	data, err := json.Marshal(Invalid{RunID: "r", Issue: NewIssue(UnsupportedCommandIssue, "Unknown command: Foo")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"_type":"Invalid","runId":"r","issue":{"kind":"UnsupportedCommandIssue","message":"Unknown command: Foo"}}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}

	data, _ = json.Marshal(Completed{RunID: "r", Result: NewResult()})
	want = `{"_type":"Completed","runId":"r","result":{"paramSet":[]}}`
	if string(data) != want {
		t.Errorf("got  %s\nwant %s", data, want)
	}

	data, _ = json.Marshal(Accepted{RunID: "r"})
	if string(data) != `{"_type":"Accepted","runId":"r"}` {
		t.Errorf("accepted encoded as %s", data)
	}
}

func TestResponseDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		want error
	}{
		{"unknown variant", `{"_type":"Maybe","runId":"r"}`, ErrUnknownVariant},
		{"missing runId", `{"_type":"Accepted"}`, param.ErrMissingField},
		{"invalid without issue", `{"_type":"Invalid","runId":"r"}`, param.ErrMissingField},
		{"unknown issue", `{"_type":"Invalid","runId":"r","issue":{"kind":"BadVibesIssue","message":"x"}}`, ErrUnknownIssue},
		{"bad result", `{"_type":"Completed","runId":"r","result":{"paramSet":[{"keyName":"x","keyType":"IntKey","values":["a"]}]}}`, param.ErrValueType},
		{"syntax", `{"_type":`, param.ErrDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalResponse([]byte(tt.json))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, param.ErrDecode) {
				t.Errorf("error %v is not a decode error", err)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := map[Response]bool{
		Accepted{RunID: "r"}:  false,
		Started{RunID: "r"}:   false,
		Completed{RunID: "r"}: true,
		Error{RunID: "r"}:     true,
		Invalid{RunID: "r"}:   true,
		Locked{RunID: "r"}:    true,
	}
	for resp, want := range terminal {
		if got := IsTerminal(resp); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", resp.Type(), got, want)
		}
	}
}
