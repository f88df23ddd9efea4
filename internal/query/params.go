package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 25
	MaxLimit     = 500
	// MaxOffset bounds the row offset a page or explicit offset may reach.
	MaxOffset = 1_000_000
)

// Sort orders results by one field.
type Sort struct {
	Field string
	Desc  bool
}

// String renders the sort as "field,ASC" or "field,DESC".
func (s Sort) String() string {
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	return s.Field + "," + dir
}

// Params are the list parameters shared by every collection endpoint.
type Params struct {
	Filter Node
	Sort   []Sort
	Page   int
	Limit  int
	Offset int
}

// Values encodes the parameters as query-string values.
func (p Params) Values() (url.Values, error) {
	v := url.Values{}
	filter, err := Encode(p.Filter)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		v.Set("filter", filter)
	}
	for _, s := range p.Sort {
		v.Add("sort", s.String())
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		v.Set("offset", strconv.Itoa(p.Offset))
	}
	return v, nil
}

// ParseParams decodes list parameters. Missing page and limit fall back to 1
// and DefaultLimit; limit is capped at MaxLimit. Pages or offsets past
// MaxOffset are rejected.
func ParseParams(v url.Values) (Params, error) {
	filter, err := Parse(v.Get("filter"))
	if err != nil {
		return Params{}, err
	}
	p := Params{Filter: filter, Page: 1, Limit: DefaultLimit}
	for _, raw := range v["sort"] {
		s, err := parseSort(raw)
		if err != nil {
			return Params{}, err
		}
		p.Sort = append(p.Sort, s)
	}
	if page, err := strconv.Atoi(v.Get("page")); err == nil && page > 0 {
		p.Page = page
	}
	if limit, err := strconv.Atoi(v.Get("limit")); err == nil && limit > 0 {
		p.Limit = limit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if offset, err := strconv.Atoi(v.Get("offset")); err == nil && offset > 0 {
		p.Offset = offset
	}
	if p.Offset > MaxOffset {
		return Params{}, fmt.Errorf("%w: offset %d exceeds %d", ErrMalformedFilter, p.Offset, MaxOffset)
	}
	if p.Page-1 > MaxOffset/p.Limit {
		return Params{}, fmt.Errorf("%w: page %d exceeds max offset %d", ErrMalformedFilter, p.Page, MaxOffset)
	}
	return p, nil
}

func parseSort(raw string) (Sort, error) {
	field, dir, _ := strings.Cut(strings.TrimSpace(raw), ",")
	field = strings.TrimSpace(field)
	if field == "" {
		return Sort{}, fmt.Errorf("%w: empty sort field", ErrMalformedFilter)
	}
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "", "ASC":
		return Sort{Field: field}, nil
	case "DESC":
		return Sort{Field: field, Desc: true}, nil
	default:
		return Sort{}, fmt.Errorf("%w: sort direction %q", ErrMalformedFilter, dir)
	}
}

// EffectiveOffset returns the explicit offset or the one implied by the page.
func (p Params) EffectiveOffset() int {
	if p.Offset > 0 {
		return p.Offset
	}
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > MaxOffset/p.Limit {
		return MaxOffset
	}
	return (p.Page - 1) * p.Limit
}

// Clause is a compiled filter, ordering and window ready to append to a SELECT.
type Clause struct {
	Where   string
	Args    []any
	OrderBy string
	Limit   int
	Offset  int
}

// Compile validates the parameters against the column allowlist.
func (p Params) Compile(columns Columns, defaultOrder string) (Clause, error) {
	where, args, err := ToSQL(p.Filter, columns, 1)
	if err != nil {
		return Clause{}, err
	}
	order := make([]string, 0, len(p.Sort))
	for _, s := range p.Sort {
		col, ok := columns[s.Field]
		if !ok {
			return Clause{}, fmt.Errorf("%w: %s", ErrUnknownField, s.Field)
		}
		if s.Desc {
			order = append(order, col+" DESC")
		} else {
			order = append(order, col+" ASC")
		}
	}
	orderBy := defaultOrder
	if len(order) > 0 {
		orderBy = strings.Join(order, ", ")
	}
	return Clause{Where: where, Args: args, OrderBy: orderBy, Limit: p.Limit, Offset: p.EffectiveOffset()}, nil
}

// Select appends the clause to a base SELECT statement.
func (c Clause) Select(base string) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	if c.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(c.Where)
	}
	if c.OrderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(c.OrderBy)
	}
	args := append([]any{}, c.Args...)
	if c.Limit > 0 {
		args = append(args, c.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
		args = append(args, c.Offset)
		sb.WriteString(" OFFSET $" + strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

// Count appends only the filter to a base COUNT statement.
func (c Clause) Count(base string) (string, []any) {
	if c.Where == "" {
		return base, nil
	}
	return base + " WHERE " + c.Where, c.Args
}
