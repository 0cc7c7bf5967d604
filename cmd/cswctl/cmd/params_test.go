package cmd

import (
	"errors"
	"testing"

	"github.com/tmt-csw/gocsw/pkg/param"
)

func TestParseParam(t *testing.T) {
	p, err := parseParam("encoder:IntKey:1,2,3:arcsec")
	if err != nil {
		t.Fatalf("parseParam: %v", err)
	}
	if p.KeyName != "encoder" || p.KeyType != param.IntKey || p.Units != param.Arcsec {
		t.Fatalf("param = %+v", p)
	}
	v, ok := param.ValuesAs[param.Scalars[int32]](p)
	if !ok || len(v) != 3 || v[2] != 3 {
		t.Errorf("values = %#v", p.Values)
	}

	p, err = parseParam("filters:StringArrayKey:red,green")
	if err != nil {
		t.Fatalf("parseParam: %v", err)
	}
	arr, ok := param.ValuesAs[param.Arrays[string]](p)
	if !ok || len(arr) != 1 || len(arr[0]) != 2 || arr[0][1] != "green" {
		t.Errorf("values = %#v", p.Values)
	}

	p, err = parseParam("on:BooleanKey:true")
	if err != nil {
		t.Fatalf("parseParam: %v", err)
	}
	if b, _ := param.ValuesAs[param.Scalars[bool]](p); len(b) != 1 || !b[0] {
		t.Errorf("values = %#v", p.Values)
	}
}

func TestParseParamErrors(t *testing.T) {
	for _, arg := range []string{
		"noparts",
		"a:IntKey",
		":IntKey:1",
		"a:NoSuchKey:1",
		"m:IntMatrixKey:1,2",
		"s:StructKey:x",
		"a:IntKey:notanumber",
		"a:ByteKey:1000",
	} {
		if _, err := parseParam(arg); err == nil {
			t.Errorf("parseParam(%q): expected error", arg)
		}
	}

	_, err := parseParam("a:IntKey:1.5")
	if !errors.Is(err, param.ErrDecode) {
		t.Errorf("bad value err = %v, want ErrDecode", err)
	}
}
