package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Op is a comparison operator in a filter condition.
type Op string

const (
	OpEq     Op = "$eq"
	OpNe     Op = "$ne"
	OpGt     Op = "$gt"
	OpGte    Op = "$gte"
	OpLt     Op = "$lt"
	OpLte    Op = "$lte"
	OpCont   Op = "$cont"
	OpIn     Op = "$in"
	OpIsNull Op = "$isnull"
)

const (
	keyAnd = "$and"
	keyOr  = "$or"
)

var (
	// ErrUnknownField is returned when a filter or sort references a column outside the allowlist.
	ErrUnknownField = errors.New("query: unknown field")
	// ErrUnsupportedOperator is returned for operators the translator does not know.
	ErrUnsupportedOperator = errors.New("query: unsupported operator")
	// ErrMalformedFilter wraps JSON decoding problems.
	ErrMalformedFilter = errors.New("query: malformed filter")
)

// Node is one element of a predicate tree: either a condition on a field or a
// conjunction/disjunction of child nodes.
type Node struct {
	Field string
	Op    Op
	Value any
	And   []Node
	Or    []Node
}

// Cond builds a condition node.
func Cond(field string, op Op, value any) Node {
	return Node{Field: field, Op: op, Value: value}
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Node { return Cond(field, OpEq, value) }

// And combines nodes with AND, skipping empty ones.
func And(nodes ...Node) Node { return Node{And: compact(nodes)} }

// Or combines nodes with OR, skipping empty ones.
func Or(nodes ...Node) Node { return Node{Or: compact(nodes)} }

// IsEmpty reports whether the node carries no predicate.
func (n Node) IsEmpty() bool {
	return n.Field == "" && len(n.And) == 0 && len(n.Or) == 0
}

func compact(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if !n.IsEmpty() {
			out = append(out, n)
		}
	}
	return out
}

// MarshalJSON encodes the node in the {"$and":[...]} / {"field":{"$op":v}} form.
func (n Node) MarshalJSON() ([]byte, error) {
	switch {
	case n.Field != "":
		return json.Marshal(map[string]map[Op]any{n.Field: {n.Op: n.Value}})
	case len(n.And) > 0:
		return json.Marshal(map[string][]Node{keyAnd: n.And})
	case len(n.Or) > 0:
		return json.Marshal(map[string][]Node{keyOr: n.Or})
	default:
		return []byte("{}"), nil
	}
}

// UnmarshalJSON decodes the predicate tree. Objects with several keys are
// combined with AND.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFilter, err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Node, 0, len(keys))
	for _, key := range keys {
		body := raw[key]
		switch key {
		case keyAnd, keyOr:
			var children []Node
			if err := json.Unmarshal(body, &children); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMalformedFilter, key, err)
			}
			if key == keyAnd {
				parts = append(parts, And(children...))
			} else {
				parts = append(parts, Or(children...))
			}
		default:
			conds, err := decodeConditions(key, body)
			if err != nil {
				return err
			}
			parts = append(parts, conds...)
		}
	}
	parts = compact(parts)
	switch len(parts) {
	case 0:
		*n = Node{}
	case 1:
		*n = parts[0]
	default:
		*n = Node{And: parts}
	}
	return nil
}

func decodeConditions(field string, body json.RawMessage) ([]Node, error) {
	var ops map[Op]json.RawMessage
	if err := json.Unmarshal(body, &ops); err != nil {
		// {"field": value} is accepted as equality.
		value, verr := decodeValue(body)
		if verr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFilter, field, err)
		}
		return []Node{Eq(field, value)}, nil
	}
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, string(op))
	}
	sort.Strings(names)
	out := make([]Node, 0, len(ops))
	for _, name := range names {
		value, err := decodeValue(ops[Op(name)])
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ErrMalformedFilter, field, name, err)
		}
		out = append(out, Cond(field, Op(name), value))
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode renders the node as the JSON string used in the filter query parameter.
func Encode(n Node) (string, error) {
	if n.IsEmpty() {
		return "", nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse decodes a filter query parameter. Blank input yields an empty node.
func Parse(s string) (Node, error) {
	if strings.TrimSpace(s) == "" {
		return Node{}, nil
	}
	var n Node
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return Node{}, err
	}
	return n, nil
}
