package api

import (
	"regexp"

	"github.com/daniel-jacob-pearson/moosic/internal/ranges"
	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

// Parameter validation helpers. Validation failures surface as faults
// before any state is touched.

func wantArgs(params []any, min, max int) error {
	if len(params) < min || len(params) > max {
		return xmlrpc.Faultf(xmlrpc.CodeType, "expected between %d and %d arguments, got %d", min, max, len(params))
	}
	return nil
}

func argInt(params []any, i int) (int, error) {
	n, ok := params[i].(int)
	if !ok {
		return 0, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: expected an integer", i+1)
	}
	return n, nil
}

func argBool(params []any, i int) (bool, error) {
	switch v := params[i].(type) {
	case bool:
		return v, nil
	case int:
		// Clients that predate the boolean type send 0/1.
		return v != 0, nil
	}
	return false, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: expected a boolean", i+1)
}

func argString(params []any, i int) (string, error) {
	s, ok := params[i].(string)
	if !ok {
		return "", xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: expected a string", i+1)
	}
	return s, nil
}

// argBytes accepts base64-wrapped byte strings and, for convenience,
// plain strings. Used for patterns and replacement texts.
func argBytes(params []any, i int) ([]byte, error) {
	switch v := params[i].(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: expected a byte string", i+1)
}

// argItems validates an array of queue items. Only byte strings may be
// inserted into the queue.
func argItems(params []any, i int) ([][]byte, error) {
	arr, ok := params[i].([]any)
	if !ok {
		return nil, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: expected an array of byte strings", i+1)
	}
	items := make([][]byte, 0, len(arr))
	for _, e := range arr {
		b, ok := e.([]byte)
		if !ok {
			return nil, xmlrpc.Faultf(xmlrpc.CodeType, "objects of type %T cannot be inserted", e)
		}
		items = append(items, b)
	}
	return items, nil
}

// argRange validates a range argument: an array of at most two integers.
func argRange(params []any, i int) (ranges.Range, error) {
	arr, ok := params[i].([]any)
	if !ok {
		return nil, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: a range must be an array of integers", i+1)
	}
	r := make(ranges.Range, 0, len(arr))
	for _, e := range arr {
		n, ok := e.(int)
		if !ok {
			return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "argument %d: a range may only contain integers", i+1)
		}
		r = append(r, n)
	}
	if len(r) > 2 {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "invalid range argument: %v", r)
	}
	return r, nil
}

// optionalRange reads params[i] as a range if present, else the whole
// queue.
func optionalRange(params []any, i int) (ranges.Range, error) {
	if len(params) <= i {
		return ranges.Range{}, nil
	}
	return argRange(params, i)
}

// argIndices validates an array of element positions.
func argIndices(params []any, i int) ([]int, error) {
	arr, ok := params[i].([]any)
	if !ok {
		return nil, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: expected an array of integers", i+1)
	}
	indices := make([]int, 0, len(arr))
	for _, e := range arr {
		n, ok := e.(int)
		if !ok {
			return nil, xmlrpc.Faultf(xmlrpc.CodeType, "argument %d: positions must be integers", i+1)
		}
		indices = append(indices, n)
	}
	return indices, nil
}

// argRegexp compiles a pattern argument.
func argRegexp(params []any, i int) (*regexp.Regexp, error) {
	pattern, err := argBytes(params, i)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(string(pattern))
	if err != nil {
		return nil, xmlrpc.Faultf(xmlrpc.CodeParse, "bad regular expression %q: %v", pattern, err)
	}
	return re, nil
}
