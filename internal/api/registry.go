// Package api implements the Moosic method surface: the operations
// clients invoke over the RPC transports, the dispatch registry they are
// installed in, and the introspection and multicall facilities.
package api

import (
	"sort"

	"github.com/daniel-jacob-pearson/moosic/internal/xmlrpc"
)

// Type tokens used in method signatures.
const (
	Int     = "int"
	Boolean = "boolean"
	Double  = "double"
	String  = "string"
	Base64  = "base64"
	Array   = "array"
	Struct  = "struct"
)

// Handler executes one method against its decoded parameters.
type Handler func(params []any) (any, error)

type method struct {
	handler    Handler
	signatures [][]string
	help       string
}

// Registry maps method names to handlers, signatures and help text. The
// dispatcher is built from it; the system.* introspection methods are
// backed by it.
type Registry struct {
	methods            map[string]*method
	AllowIntrospection bool
}

// NewRegistry returns a registry with the system.* suite installed.
func NewRegistry() *Registry {
	r := &Registry{
		methods:            make(map[string]*method),
		AllowIntrospection: true,
	}
	r.installSystemMethods()
	return r
}

// Register installs a method. Registering an existing name replaces it.
// Aliases are separate names registered with the same handler.
func (r *Registry) Register(name string, h Handler, signatures [][]string, help string) {
	r.methods[name] = &method{handler: h, signatures: signatures, help: help}
}

// Names returns all registered method names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes a call to its handler. Failures come back as
// *xmlrpc.Fault so the transport can encode them directly.
func (r *Registry) Dispatch(name string, params []any) (any, error) {
	m, ok := r.methods[name]
	if !ok {
		return nil, xmlrpc.Faultf(xmlrpc.CodeNoSuchMethod, "Method %q not found", name)
	}
	result, err := m.handler(params)
	if err != nil {
		return nil, xmlrpc.AsFault(err)
	}
	return result, nil
}

func (r *Registry) installSystemMethods() {
	r.Register("system.listMethods", r.listMethods, [][]string{{Array}},
		"Return an array of all available XML-RPC methods on this server.")
	r.Register("system.methodSignature", r.methodSignature, [][]string{{Array, String}},
		"Given the name of a method, return an array of legal signatures. Each\n"+
			"signature is an array of strings. The first item of each signature is\n"+
			"the return type, and any others items are parameter types.")
	r.Register("system.methodHelp", r.methodHelp, [][]string{{String, String}},
		"Given the name of a method, return a help string.")
	r.Register("system.multicall", r.multicall, [][]string{{Array, Array}},
		"Process an array of calls, and return an array of results. Calls\n"+
			"should be structs of the form {'methodName': string, 'params': array}.\n"+
			"Each result will either be a single-item array containing the result\n"+
			"value, or a struct of the form {'faultCode': int, 'faultString':\n"+
			"string}. This is useful when you need to make lots of small calls\n"+
			"without lots of round trips.")
}

func (r *Registry) introspectionCheck() error {
	if !r.AllowIntrospection {
		return xmlrpc.Faultf(xmlrpc.CodeIntrospectionDisabled,
			"Introspection has been disabled on this server, probably for security reasons.")
	}
	return nil
}

func (r *Registry) listMethods(params []any) (any, error) {
	if err := r.introspectionCheck(); err != nil {
		return nil, err
	}
	names := r.Names()
	result := make([]any, len(names))
	for i, name := range names {
		result[i] = name
	}
	return result, nil
}

func (r *Registry) namedMethod(params []any) (*method, error) {
	if err := r.introspectionCheck(); err != nil {
		return nil, err
	}
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	name, err := argString(params, 0)
	if err != nil {
		return nil, err
	}
	m, ok := r.methods[name]
	if !ok {
		return nil, xmlrpc.Faultf(xmlrpc.CodeNoSuchMethod, "Method %q not found", name)
	}
	return m, nil
}

func (r *Registry) methodSignature(params []any) (any, error) {
	m, err := r.namedMethod(params)
	if err != nil {
		return nil, err
	}
	signatures := make([]any, len(m.signatures))
	for i, sig := range m.signatures {
		tokens := make([]any, len(sig))
		for j, tok := range sig {
			tokens[j] = tok
		}
		signatures[i] = tokens
	}
	return signatures, nil
}

func (r *Registry) methodHelp(params []any) (any, error) {
	m, err := r.namedMethod(params)
	if err != nil {
		return nil, err
	}
	return m.help, nil
}

func (r *Registry) multicall(params []any) (any, error) {
	if err := wantArgs(params, 1, 1); err != nil {
		return nil, err
	}
	calls, ok := params[0].([]any)
	if !ok {
		return nil, xmlrpc.Faultf(xmlrpc.CodeType, "system.multicall expects an array of call structs")
	}
	results := make([]any, 0, len(calls))
	for _, c := range calls {
		results = append(results, r.dispatchMulticallElement(c))
	}
	return results, nil
}

// dispatchMulticallElement runs one element of a multicall. Failures are
// returned as fault structs in the element's result slot, so one bad call
// doesn't abort the batch.
func (r *Registry) dispatchMulticallElement(c any) any {
	call, ok := c.(map[string]any)
	if !ok {
		return faultStruct(xmlrpc.Faultf(xmlrpc.CodeType, "multicall elements must be structs"))
	}
	name, ok := call["methodName"].(string)
	if !ok {
		return faultStruct(xmlrpc.Faultf(xmlrpc.CodeParse, "multicall element has no methodName"))
	}
	if name == "system.multicall" {
		return faultStruct(xmlrpc.Faultf(xmlrpc.CodeRequestRefused, "Recursive system.multicall forbidden"))
	}
	callParams, ok := call["params"].([]any)
	if !ok && call["params"] != nil {
		return faultStruct(xmlrpc.Faultf(xmlrpc.CodeParse, "multicall params must be an array"))
	}
	result, err := r.Dispatch(name, callParams)
	if err != nil {
		return faultStruct(xmlrpc.AsFault(err))
	}
	return []any{result}
}

func faultStruct(f *xmlrpc.Fault) map[string]any {
	return map[string]any{"faultCode": f.Code, "faultString": f.String}
}
