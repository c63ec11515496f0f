package earthengine

import (
	"fmt"
	"strconv"
)

// Value is anything that serializes to an Earth Engine function invocation.
type Value interface {
	invocation() *Invocation
}

// Invocation is one node of a computation graph: an Earth Engine algorithm name and
// its named arguments. Argument values may be Go primitives, slices, maps, other
// Values, ArgRef or FuncDef.
//
// Invocations are immutable once built and may be shared between graphs; the
// serializer emits each shared node once.
type Invocation struct {
	Function string
	Args     map[string]any

	// Ref, when set, makes the node an argument reference of an enclosing FuncDef.
	Ref string
}

func (i *Invocation) invocation() *Invocation { return i }

// Call builds an invocation of the named algorithm. Nil arguments are dropped so
// optional parameters can be passed unconditionally.
func Call(function string, args map[string]any) *Invocation {
	clean := make(map[string]any, len(args))
	for k, v := range args {
		if v == nil {
			continue
		}
		clean[k] = v
	}
	return &Invocation{Function: function, Args: clean}
}

// ArgRef references an argument of an enclosing FuncDef.
type ArgRef string

// FuncDef is an anonymous function passed to algorithms such as Collection.map.
type FuncDef struct {
	ArgNames []string
	Body     Value
}

// Expression is the serialized form accepted by the REST API.
type Expression struct {
	Result string                    `json:"result"`
	Values map[string]map[string]any `json:"values"`
}

// Serialize flattens the graph rooted at v into an Expression. Every invocation is
// emitted once, in post-order, and referenced by id.
func Serialize(v Value) (*Expression, error) {
	if v == nil || v.invocation() == nil {
		return nil, fmt.Errorf("cannot serialize nil value")
	}
	if v.invocation().Ref != "" {
		return nil, fmt.Errorf("cannot serialize bare argument reference %q", v.invocation().Ref)
	}
	s := &serializer{
		ids:    make(map[*Invocation]string),
		values: make(map[string]map[string]any),
	}
	id, err := s.emit(v.invocation())
	if err != nil {
		return nil, err
	}
	return &Expression{Result: id, Values: s.values}, nil
}

type serializer struct {
	ids    map[*Invocation]string
	values map[string]map[string]any
	next   int
}

func (s *serializer) emit(inv *Invocation) (string, error) {
	if id, ok := s.ids[inv]; ok {
		return id, nil
	}
	args := make(map[string]any, len(inv.Args))
	for name, arg := range inv.Args {
		enc, err := s.encode(arg)
		if err != nil {
			return "", fmt.Errorf("%s(%s): %w", inv.Function, name, err)
		}
		args[name] = enc
	}
	id := strconv.Itoa(s.next)
	s.next++
	s.ids[inv] = id
	s.values[id] = map[string]any{
		"functionInvocationValue": map[string]any{
			"functionName": inv.Function,
			"arguments":    args,
		},
	}
	return id, nil
}

func (s *serializer) encode(v any) (map[string]any, error) {
	switch x := v.(type) {
	case Value:
		inv := x.invocation()
		if inv == nil {
			return nil, fmt.Errorf("nil %T argument", v)
		}
		if inv.Ref != "" {
			return map[string]any{"argumentReference": inv.Ref}, nil
		}
		id, err := s.emit(inv)
		if err != nil {
			return nil, err
		}
		return map[string]any{"valueReference": id}, nil
	case ArgRef:
		return map[string]any{"argumentReference": string(x)}, nil
	case FuncDef:
		if x.Body == nil {
			return nil, fmt.Errorf("function definition without body")
		}
		id, err := s.emit(x.Body.invocation())
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"functionDefinitionValue": map[string]any{
				"argumentNames": x.ArgNames,
				"body":          id,
			},
		}, nil
	case []any:
		if isConstant(x) {
			return map[string]any{"constantValue": x}, nil
		}
		items := make([]map[string]any, 0, len(x))
		for _, item := range x {
			enc, err := s.encode(item)
			if err != nil {
				return nil, err
			}
			items = append(items, enc)
		}
		return map[string]any{"arrayValue": map[string]any{"values": items}}, nil
	case map[string]any:
		if isConstant(x) {
			return map[string]any{"constantValue": x}, nil
		}
		entries := make(map[string]any, len(x))
		for k, item := range x {
			enc, err := s.encode(item)
			if err != nil {
				return nil, err
			}
			entries[k] = enc
		}
		return map[string]any{"dictionaryValue": map[string]any{"values": entries}}, nil
	default:
		if !isConstant(x) {
			return nil, fmt.Errorf("unsupported argument type %T", v)
		}
		return map[string]any{"constantValue": x}, nil
	}
}

// isConstant reports whether v contains no graph nodes.
func isConstant(v any) bool {
	switch x := v.(type) {
	case nil, bool, string, int, int64, float64, float32:
		return true
	case []string, []float64, []int, [][]float64, [][][]float64, [][][][]float64:
		return true
	case []any:
		for _, item := range x {
			if !isConstant(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range x {
			if !isConstant(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
