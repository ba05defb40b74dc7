package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/persist"
)

// Accessor reads and writes one property of an entity instance. Accessors are
// resolved once per property when the engine boots.
type Accessor interface {
	// Get returns the property value. fetched is false for lazy values that
	// were never loaded.
	Get(obj any) (v any, fetched bool)
	// Set assigns the property value.
	Set(obj any, v any) error
	// Reset marks a lazy value as not loaded.
	Reset(obj any)
}

// Cell is implemented by field wrapper types that carry the load state of a
// lazy value next to the value itself.
type Cell interface {
	CellValue() (v any, fetched bool)
	SetCellValue(v any) error
	ResetCell()
}

// FuncAccessor calls accessor functions declared on the mapping.
type FuncAccessor struct {
	Getter func(obj any) any
	Setter func(obj any, v any) error
}

// Get implements Accessor.
func (a FuncAccessor) Get(obj any) (any, bool) {
	v := a.Getter(obj)
	if c, ok := v.(Cell); ok {
		return c.CellValue()
	}
	return v, true
}

// Set implements Accessor.
func (a FuncAccessor) Set(obj any, v any) error {
	if a.Setter == nil {
		return fmt.Errorf("schema: property has no setter")
	}
	return a.Setter(obj, v)
}

// Reset implements Accessor.
func (a FuncAccessor) Reset(obj any) {
	if c, ok := a.Getter(obj).(Cell); ok {
		c.ResetCell()
	}
}

// FieldAccessor reads a struct field by its index path.
type FieldAccessor struct {
	Index []int
	Type  reflect.Type
}

func (a FieldAccessor) field(obj any) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("schema: field access needs a non-nil struct pointer, got %T", obj)
	}
	rv = rv.Elem()
	for i, x := range a.Index {
		if i > 0 && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				rv.Set(reflect.New(rv.Type().Elem()))
			}
			rv = rv.Elem()
		}
		rv = rv.Field(x)
	}
	return rv, nil
}

// Get implements Accessor.
func (a FieldAccessor) Get(obj any) (any, bool) {
	f, err := a.field(obj)
	if err != nil {
		return nil, true
	}
	if c, ok := f.Addr().Interface().(Cell); ok {
		return c.CellValue()
	}
	if f.Kind() == reflect.Pointer && f.IsNil() {
		return nil, true
	}
	return f.Interface(), true
}

// Set implements Accessor. Values are converted to the field type when
// they are convertible, and nil resets the field to its zero value.
func (a FieldAccessor) Set(obj any, v any) error {
	f, err := a.field(obj)
	if err != nil {
		return err
	}
	if c, ok := f.Addr().Interface().(Cell); ok {
		return c.SetCellValue(v)
	}
	if v == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	rv := reflect.ValueOf(v)
	ft := f.Type()
	if ft.Kind() == reflect.Pointer && rv.Type() != ft {
		ptr := reflect.New(ft.Elem())
		if err := assign(ptr.Elem(), rv); err != nil {
			return err
		}
		f.Set(ptr)
		return nil
	}
	return assign(f, rv)
}

func assign(dst, src reflect.Value) error {
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.Type().ConvertibleTo(dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("schema: cannot assign %s to field of type %s", src.Type(), dst.Type())
	}
	return nil
}

// Reset implements Accessor.
func (a FieldAccessor) Reset(obj any) {
	f, err := a.field(obj)
	if err != nil {
		return
	}
	if c, ok := f.Addr().Interface().(Cell); ok {
		c.ResetCell()
	}
}

// MapAccessor reads an entry of a map[string]any instance.
type MapAccessor struct {
	Key string
}

// Get implements Accessor. An absent key reads as not fetched.
func (a MapAccessor) Get(obj any) (any, bool) {
	m, ok := obj.(map[string]any)
	if !ok {
		return nil, true
	}
	v, ok := m[a.Key]
	return v, ok
}

// Set implements Accessor.
func (a MapAccessor) Set(obj any, v any) error {
	m, ok := obj.(map[string]any)
	if !ok {
		return fmt.Errorf("schema: map access needs map[string]any, got %T", obj)
	}
	m[a.Key] = v
	return nil
}

// Reset implements Accessor.
func (a MapAccessor) Reset(obj any) {
	if m, ok := obj.(map[string]any); ok {
		delete(m, a.Key)
	}
}

// ResolveAccessor selects the accessor of a property: the declared accessor
// functions first, then a map entry for map entities, then the struct field
// named by Property.Field or, by default, the exported form of the name.
func ResolveAccessor(e *Entity, p *Property) (Accessor, error) {
	switch {
	case p.Getter != nil:
		return FuncAccessor{Getter: p.Getter, Setter: p.Setter}, nil
	case e.MapMode || (e.GoType == nil && e.New == nil):
		return MapAccessor{Key: p.Name}, nil
	}
	t := e.GoType
	if t == nil {
		t = reflect.TypeOf(e.New())
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &persist.MappingError{Entity: e.Name, Property: p.Name, Kind: persist.UnresolvedProperty, Message: fmt.Sprintf("%s is not a struct type", t)}
	}
	path := p.Field
	if path == "" {
		path = exported(p.Name)
	}
	var (
		index []int
		cur   = t
	)
	for _, part := range strings.Split(path, ".") {
		for cur.Kind() == reflect.Pointer {
			cur = cur.Elem()
		}
		if cur.Kind() != reflect.Struct {
			return nil, &persist.MappingError{Entity: e.Name, Property: p.Name, Kind: persist.UnresolvedProperty, Message: fmt.Sprintf("field path %q crosses non-struct %s", path, cur)}
		}
		sf, ok := cur.FieldByName(part)
		if !ok || !sf.IsExported() {
			return nil, &persist.MappingError{Entity: e.Name, Property: p.Name, Kind: persist.UnresolvedProperty, Message: fmt.Sprintf("no exported field %q in %s", part, cur)}
		}
		index = append(index, sf.Index...)
		cur = sf.Type
	}
	return FieldAccessor{Index: index, Type: cur}, nil
}

// exported returns the Go field name for a property name: "first_name"
// and "firstName" become "FirstName", and a trailing "id" becomes "ID".
func exported(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if r == '_' || r == '-' || r == ' ' {
			upper = true
			continue
		}
		if upper {
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if s == "Id" || strings.HasSuffix(s, "Id") && len(s) > 2 {
		s = s[:len(s)-2] + "ID"
	}
	return s
}
