package mockgithub

// execute.go resolves the selections of an operation against the object tree

import (
	"context"
	"time"

	"github.com/dolmen-go/jsonmap"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// operation holds what is needed to resolve one (validated) operation
type operation struct {
	schema    *ast.Schema
	variables map[string]interface{}
	errors    gqlerror.List // errors from resolvers (the field value is then null)
}

// selections returns the values of the fields in set for obj, in query order.  Fields that
// appear more than once (eg in a fragment as well) are merged.
func (op *operation) selections(ctx context.Context, set ast.SelectionSet, obj *Object, path ast.Path) (jsonmap.Ordered, error) {
	r := jsonmap.Ordered{
		Data:  make(map[string]interface{}, len(set)),
		Order: make([]string, 0, len(set)),
	}
	if err := op.collect(ctx, set, obj, path, &r); err != nil {
		return jsonmap.Ordered{}, err
	}
	return r, nil
}

func (op *operation) collect(ctx context.Context, set ast.SelectionSet, obj *Object, path ast.Path, r *jsonmap.Ordered) error {
	for _, s := range set {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch sel := s.(type) {
		case *ast.Field:
			if !op.included(sel.Directives) {
				continue
			}
			v, err := op.field(ctx, sel, obj, append(path, ast.PathName(sel.Alias)))
			if err != nil {
				return err
			}
			add(r, sel.Alias, v)

		case *ast.InlineFragment:
			if !op.included(sel.Directives) || !op.applies(sel.TypeCondition, obj.Typename) {
				continue
			}
			if err := op.collect(ctx, sel.SelectionSet, obj, path, r); err != nil {
				return err
			}

		case *ast.FragmentSpread:
			if !op.included(sel.Directives) || !op.applies(sel.Definition.TypeCondition, obj.Typename) {
				continue
			}
			if err := op.collect(ctx, sel.Definition.SelectionSet, obj, path, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// add puts a value in the result, merging objects if the name is already used
func add(r *jsonmap.Ordered, name string, v interface{}) {
	old, ok := r.Data[name]
	if !ok {
		r.Order = append(r.Order, name)
		r.Data[name] = v
		return
	}
	if o1, ok := old.(jsonmap.Ordered); ok {
		if o2, ok := v.(jsonmap.Ordered); ok {
			for _, k := range o2.Order {
				add(&o1, k, o2.Data[k])
			}
			r.Data[name] = o1
			return
		}
	}
	r.Data[name] = v
}

func (op *operation) field(ctx context.Context, f *ast.Field, obj *Object, path ast.Path) (interface{}, error) {
	if f.Name == "__typename" {
		return obj.Typename, nil
	}
	v, ok := obj.Fields[f.Name]
	if !ok {
		panic("BUG no value for field " + obj.Typename + "." + f.Name + " in mock data")
	}
	if resolver, ok := v.(Resolver); ok {
		var err error
		if v, err = resolver(f.ArgumentMap(op.variables)); err != nil {
			op.errors = append(op.errors, &gqlerror.Error{
				Message:    err.Error(),
				Path:       append(ast.Path{}, path...),
				Locations:  []gqlerror.Location{{Line: f.Position.Line, Column: f.Position.Column}},
				Extensions: map[string]interface{}{"type": "NOT_FOUND"},
			})
			return nil, nil
		}
	}
	return op.value(ctx, f, v, path)
}

func (op *operation) value(ctx context.Context, f *ast.Field, v interface{}, path ast.Path) (interface{}, error) {
	switch val := v.(type) {
	case *Object:
		if val == nil {
			return nil, nil
		}
		return op.selections(ctx, f.SelectionSet, val, path)
	case []*Object:
		list := make([]interface{}, len(val))
		for i, elem := range val {
			var err error
			if list[i], err = op.value(ctx, f, elem, append(path, ast.PathIndex(i))); err != nil {
				return nil, err
			}
		}
		return list, nil
	case time.Time:
		return val.Format(time.RFC3339), nil
	default:
		return v, nil
	}
}

// applies returns true if a fragment with the type condition applies to an object of the type
func (op *operation) applies(condition, typename string) bool {
	if condition == "" || condition == typename {
		return true
	}
	for _, def := range op.schema.PossibleTypes[condition] {
		if def.Name == typename {
			return true
		}
	}
	return false
}

// included evaluates @skip and @include directives
func (op *operation) included(directives ast.DirectiveList) bool {
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		b, _ := d.ArgumentMap(op.variables)["if"].(bool)
		if b == (d.Name == "skip") {
			return false
		}
	}
	return true
}
