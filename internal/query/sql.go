package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Columns maps public field names to SQL column expressions.
type Columns map[string]string

// ToSQL translates a predicate tree into a WHERE fragment with positional
// arguments starting at $firstArg. An empty tree yields an empty fragment.
func ToSQL(n Node, columns Columns, firstArg int) (string, []any, error) {
	b := sqlBuilder{columns: columns, next: firstArg}
	clause, err := b.node(n)
	if err != nil {
		return "", nil, err
	}
	return clause, b.args, nil
}

type sqlBuilder struct {
	columns Columns
	args    []any
	next    int
}

func (b *sqlBuilder) placeholder(v any) string {
	b.args = append(b.args, v)
	p := "$" + strconv.Itoa(b.next)
	b.next++
	return p
}

func (b *sqlBuilder) node(n Node) (string, error) {
	switch {
	case n.Field != "":
		return b.cond(n)
	case len(n.And) > 0:
		return b.group(n.And, " AND ")
	case len(n.Or) > 0:
		return b.group(n.Or, " OR ")
	default:
		return "", nil
	}
}

func (b *sqlBuilder) group(children []Node, sep string) (string, error) {
	parts := make([]string, 0, len(children))
	for _, child := range children {
		clause, err := b.node(child)
		if err != nil {
			return "", err
		}
		if clause != "" {
			parts = append(parts, clause)
		}
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	default:
		return "(" + strings.Join(parts, sep) + ")", nil
	}
}

func (b *sqlBuilder) cond(n Node) (string, error) {
	col, ok := b.columns[n.Field]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, n.Field)
	}
	switch n.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return col + " " + comparison[n.Op] + " " + b.placeholder(scalar(n.Value)), nil
	case OpCont:
		return col + "::text ILIKE " + b.placeholder("%"+fmt.Sprint(scalar(n.Value))+"%"), nil
	case OpIn:
		values, err := textList(n.Value)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrMalformedFilter, n.Field, err)
		}
		return col + "::text = ANY(" + b.placeholder(values) + ")", nil
	case OpIsNull:
		if isNull, _ := n.Value.(bool); !isNull {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOperator, n.Op)
	}
}

var comparison = map[Op]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

func scalar(v any) any {
	if num, ok := v.(json.Number); ok {
		if i, err := num.Int64(); err == nil {
			return i
		}
		return num.String()
	}
	return v
}

func textList(v any) ([]string, error) {
	switch items := v.(type) {
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, fmt.Sprint(scalar(item)))
		}
		return out, nil
	case []string:
		return items, nil
	case []int64:
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, strconv.FormatInt(item, 10))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("$in expects a list, got %T", v)
	}
}
