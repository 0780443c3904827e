package query

import "strings"

// FieldKind describes how a field is indexed.
type FieldKind int

// Field kinds.
const (
	Keyword FieldKind = iota + 1
	Text
	Time
)

// FieldType declares one indexed field.
type FieldType struct {
	Kind FieldKind
	// Multiple marks multi-valued fields (one item, many values).
	Multiple bool
}

// Field names of the catalog schema.
const (
	FieldAbsPath     = "abspath"
	FieldParentPath  = "parent_path"
	FieldName        = "name"
	FieldTitle       = "title"
	FieldText        = "text"
	FieldFormat      = "format"
	FieldState       = "state"
	FieldOwner       = "owner"
	FieldTags        = "tags"
	FieldPaths       = "paths"
	FieldModTime     = "mtime"
	FieldPubDatetime = "pub_datetime"
)

// Schema is the set of fields a query may reference.
type Schema map[string]FieldType

// DefaultSchema returns the catalog schema used by sitefeed.
func DefaultSchema() Schema {
	return Schema{
		FieldAbsPath:     {Kind: Keyword},
		FieldParentPath:  {Kind: Keyword},
		FieldName:        {Kind: Keyword},
		FieldFormat:      {Kind: Keyword},
		FieldState:       {Kind: Keyword},
		FieldOwner:       {Kind: Keyword},
		FieldTitle:       {Kind: Text},
		FieldText:        {Kind: Text},
		FieldTags:        {Kind: Keyword, Multiple: true},
		FieldPaths:       {Kind: Keyword, Multiple: true},
		FieldModTime:     {Kind: Time},
		FieldPubDatetime: {Kind: Time},
	}
}

// Lookup returns the type of field or an *UnknownFieldError.
func (s Schema) Lookup(field string) (FieldType, error) {
	ft, ok := s[field]
	if !ok {
		return FieldType{}, &UnknownFieldError{Field: field}
	}
	return ft, nil
}

// Phrase matches items whose field equals value exactly. On multi-valued
// fields it matches when any value equals.
func (s Schema) Phrase(field, value string) (Node, error) {
	if _, err := s.Lookup(field); err != nil {
		return Node{}, err
	}
	return Node{Kind: KindPhrase, Field: field, Value: value}, nil
}

// Range matches items whose field lies within [low, high]. An empty bound is
// open. Pure text fields cannot be ranged.
func (s Schema) Range(field, low, high string) (Node, error) {
	ft, err := s.Lookup(field)
	if err != nil {
		return Node{}, err
	}
	if ft.Kind == Text {
		return Node{}, &FieldKindError{Field: field, Kind: KindRange}
	}
	return Node{Kind: KindRange, Field: field, Low: low, High: high}, nil
}

// Text matches items whose text field contains term.
func (s Schema) Text(field, term string) (Node, error) {
	ft, err := s.Lookup(field)
	if err != nil {
		return Node{}, err
	}
	if ft.Kind != Text {
		return Node{}, &FieldKindError{Field: field, Kind: KindText}
	}
	return Node{Kind: KindText, Field: field, Value: strings.TrimSpace(term)}, nil
}

// Subtree matches every descendant of path. With includeContainer the item
// at path itself matches too.
func (s Schema) Subtree(path string, includeContainer bool) (Node, error) {
	desc, err := s.Phrase(FieldPaths, path)
	if err != nil {
		return Node{}, err
	}
	if !includeContainer {
		return desc, nil
	}
	self, err := s.Phrase(FieldAbsPath, path)
	if err != nil {
		return Node{}, err
	}
	return Or(self, desc)
}
