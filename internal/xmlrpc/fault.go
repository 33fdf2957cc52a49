package xmlrpc

import "fmt"

// Fault codes, borrowed from xmlrpc-c.
const (
	CodeInternal              = -500
	CodeType                  = -501
	CodeIndex                 = -502
	CodeParse                 = -503
	CodeNetwork               = -504
	CodeTimeout               = -505
	CodeNoSuchMethod          = -506
	CodeRequestRefused        = -507
	CodeIntrospectionDisabled = -508
	CodeLimitExceeded         = -509
	CodeInvalidUTF8           = -510
)

// Fault is an XML-RPC fault: a numeric code plus a descriptive string.
// It travels over the wire as the <fault> branch of a methodResponse.
type Fault struct {
	Code   int
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.String)
}

// Faultf builds a Fault with a formatted description.
func Faultf(code int, format string, args ...any) *Fault {
	return &Fault{Code: code, String: fmt.Sprintf(format, args...)}
}

// AsFault coerces an arbitrary error into a Fault, wrapping non-fault
// errors as internal errors so every failure has a wire representation.
func AsFault(err error) *Fault {
	if f, ok := err.(*Fault); ok {
		return f
	}
	return &Fault{Code: CodeInternal, String: err.Error()}
}
