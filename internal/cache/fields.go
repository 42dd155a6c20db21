package cache

// fields.go flattens a selection set (expanding fragments) into the list of fields that apply to an object

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// selector holds what is needed to work out which fields of a selection set apply to an object
type selector struct {
	doc           *ast.QueryDocument
	variables     map[string]interface{}
	possibleTypes map[string][]string // abstract type (interface/union) => concrete type names
}

// collectFields returns the fields in set that apply to an object with the given typename.
// Fragments are expanded (recursively) if they apply, and fields excluded by @skip/@include are
// left out.  Note that the same field (response name) may be returned more than once - eg if it
// is in the selection set and a fragment - which is harmless as the values are the same.
func (s *selector) collectFields(set ast.SelectionSet, typename string) ([]*ast.Field, error) {
	var fields []*ast.Field
	for _, selection := range set {
		switch sel := selection.(type) {
		case *ast.Field:
			ok, err := s.included(sel.Directives)
			if err != nil {
				return nil, err
			}
			if ok {
				fields = append(fields, sel)
			}

		case *ast.InlineFragment:
			ok, err := s.included(sel.Directives)
			if err != nil {
				return nil, err
			}
			if !ok || !s.applies(sel.TypeCondition, typename) {
				continue
			}
			inner, err := s.collectFields(sel.SelectionSet, typename)
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)

		case *ast.FragmentSpread:
			ok, err := s.included(sel.Directives)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			def := sel.Definition
			if def == nil {
				def = s.doc.Fragments.ForName(sel.Name)
			}
			if def == nil {
				return nil, fmt.Errorf("unknown fragment %q", sel.Name)
			}
			if !s.applies(def.TypeCondition, typename) {
				continue
			}
			inner, err := s.collectFields(def.SelectionSet, typename)
			if err != nil {
				return nil, err
			}
			fields = append(fields, inner...)
		}
	}
	return fields, nil
}

// applies returns true if a fragment with the type condition applies to an object with the
// typename.  If the object's type is not known (no __typename was queried) we assume it does.
func (s *selector) applies(condition, typename string) bool {
	if condition == "" || typename == "" || condition == typename {
		return true
	}
	for _, possible := range s.possibleTypes[condition] {
		if possible == typename {
			return true
		}
	}
	return false
}

// included evaluates @skip(if:) and @include(if:) directives
func (s *selector) included(directives ast.DirectiveList) (bool, error) {
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil {
			return false, fmt.Errorf("@%s directive without if argument", d.Name)
		}
		v, err := arg.Value.Value(s.variables)
		if err != nil {
			return false, err
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("@%s(if:) must be a Boolean", d.Name)
		}
		if b == (d.Name == "skip") {
			return false, nil
		}
	}
	return true, nil
}
