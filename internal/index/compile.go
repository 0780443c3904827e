package index

import (
	"strings"

	"github.com/starford/sitefeed/internal/query"
)

// column describes how a schema field is stored.
type column struct {
	expr string // items column, or membership table for multi-valued fields
	fts  string // FTS5 column for text fields
	// multi-valued fields live in a side table keyed by path.
	table, valueCol string
}

var columns = map[string]column{
	query.FieldAbsPath:     {expr: "i.path"},
	query.FieldParentPath:  {expr: "i.parent_path"},
	query.FieldName:        {expr: "i.name"},
	query.FieldTitle:       {expr: "i.title", fts: "title"},
	query.FieldText:        {expr: "i.body", fts: "text"},
	query.FieldFormat:      {expr: "i.format"},
	query.FieldState:       {expr: "i.state"},
	query.FieldOwner:       {expr: "i.owner"},
	query.FieldModTime:     {expr: "i.mtime"},
	query.FieldPubDatetime: {expr: "i.pub_datetime"},
	query.FieldTags:        {table: "item_tags", valueCol: "tag"},
	query.FieldPaths:       {table: "item_paths", valueCol: "ancestor"},
}

// compile translates a query tree into a SQL boolean expression over the
// items table aliased as i.
func compile(n query.Node) (string, []any, error) {
	var b strings.Builder
	var args []any
	if err := compileInto(&b, &args, n); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func compileInto(b *strings.Builder, args *[]any, n query.Node) error {
	switch n.Kind {
	case query.KindPhrase:
		col, err := lookup(n.Field)
		if err != nil {
			return err
		}
		writePredicate(b, col, "= ?")
		*args = append(*args, n.Value)

	case query.KindRange:
		col, err := lookup(n.Field)
		if err != nil {
			return err
		}
		var conds []string
		if n.Low != "" {
			conds = append(conds, ">= ?")
			*args = append(*args, n.Low)
		}
		if n.High != "" {
			conds = append(conds, "<= ?")
			*args = append(*args, n.High)
		}
		if len(conds) == 0 {
			b.WriteString("1")
			return nil
		}
		writeRange(b, col, conds)

	case query.KindText:
		col, err := lookup(n.Field)
		if err != nil {
			return err
		}
		if col.fts == "" {
			return &query.FieldKindError{Field: n.Field, Kind: n.Kind}
		}
		clause, a := textClause(col.expr, col.fts, n.Value)
		b.WriteString(clause)
		*args = append(*args, a...)

	case query.KindNot:
		if len(n.Children) != 1 {
			return &query.EmptyCompositionError{Kind: n.Kind}
		}
		b.WriteString("NOT (")
		if err := compileInto(b, args, n.Children[0]); err != nil {
			return err
		}
		b.WriteString(")")

	case query.KindAnd, query.KindOr:
		if len(n.Children) == 0 {
			return &query.EmptyCompositionError{Kind: n.Kind}
		}
		op := " AND "
		if n.Kind == query.KindOr {
			op = " OR "
		}
		b.WriteString("(")
		for i, c := range n.Children {
			if i > 0 {
				b.WriteString(op)
			}
			if err := compileInto(b, args, c); err != nil {
				return err
			}
		}
		b.WriteString(")")

	default:
		return &query.EmptyCompositionError{Kind: n.Kind}
	}
	return nil
}

func lookup(field string) (column, error) {
	col, ok := columns[field]
	if !ok {
		return column{}, &query.UnknownFieldError{Field: field}
	}
	return col, nil
}

func writePredicate(b *strings.Builder, col column, cond string) {
	if col.table == "" {
		b.WriteString(col.expr + " " + cond)
		return
	}
	b.WriteString("i.path IN (SELECT path FROM " + col.table + " WHERE " + col.valueCol + " " + cond + ")")
}

func writeRange(b *strings.Builder, col column, conds []string) {
	target := col.expr
	if col.table != "" {
		target = col.valueCol
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = target + " " + c
	}
	expr := strings.Join(parts, " AND ")
	if col.table == "" {
		b.WriteString("(" + expr + ")")
		return
	}
	b.WriteString("i.path IN (SELECT path FROM " + col.table + " WHERE " + expr + ")")
}
