package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tmt-csw/gocsw/pkg/param"
)

// parseParam parses name:KeyType:v1,v2[:units]. Scalar key types take one
// value per element; array key types take the list as a single array.
// The values are handed to the parameter codec, which does the typing.
func parseParam(arg string) (param.Parameter, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return param.Parameter{}, fmt.Errorf("param %q: want name:KeyType:values[:units]", arg)
	}
	name, keyType, list := parts[0], param.KeyType(parts[1]), parts[2]
	if name == "" {
		return param.Parameter{}, fmt.Errorf("param %q: empty name", arg)
	}
	if !keyType.Known() {
		return param.Parameter{}, fmt.Errorf("param %q: unknown key type %s", arg, keyType)
	}

	kt := string(keyType)
	array := strings.HasSuffix(kt, "ArrayKey")
	if !array && !isScalarKey(keyType) {
		return param.Parameter{}, fmt.Errorf("param %q: %s cannot be given on the command line", arg, keyType)
	}

	var elems []string
	if list != "" {
		elems = strings.Split(list, ",")
	}
	quote := keyType == param.StringKey || keyType == param.StringArrayKey || keyType == param.ChoiceKey
	for i, e := range elems {
		if quote {
			elems[i] = strconv.Quote(e)
		}
	}
	values := "[" + strings.Join(elems, ",") + "]"
	if array {
		values = "[" + values + "]"
	}

	wire := fmt.Sprintf(`{"keyName":%s,"keyType":%q,"values":%s}`, strconv.Quote(name), kt, values)
	var p param.Parameter
	if err := json.Unmarshal([]byte(wire), &p); err != nil {
		return param.Parameter{}, fmt.Errorf("param %q: %w", arg, err)
	}
	if len(parts) == 4 {
		p = p.WithUnits(param.Units(parts[3]))
	}
	return p, nil
}

func isScalarKey(t param.KeyType) bool {
	switch t {
	case param.ByteKey, param.ShortKey, param.IntKey, param.LongKey,
		param.FloatKey, param.DoubleKey, param.StringKey, param.BooleanKey, param.ChoiceKey:
		return true
	}
	return false
}

func parseParams(specs []string) ([]param.Parameter, error) {
	params := make([]param.Parameter, 0, len(specs))
	for _, s := range specs {
		p, err := parseParam(s)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
