package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/persist"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

type address struct {
	City string
}

type customer struct {
	ID      int64
	Name    string
	Age     int32
	Nick    *string
	Address *address
	Note    note
}

// note is a minimal Cell.
type note struct {
	v      string
	loaded bool
}

func (n *note) CellValue() (any, bool) { return n.v, n.loaded }
func (n *note) SetCellValue(v any) error {
	n.v, n.loaded = v.(string), true
	return nil
}
func (n *note) ResetCell() { *n = note{} }

func customerEntity() *schema.Entity {
	return schema.New("Customer").Type(customer{}).ID(field.Int64("id")).Entity()
}

func TestFieldAccessor(t *testing.T) {
	e := customerEntity()
	c := &customer{ID: 3, Name: "ada", Age: 36}

	id, err := schema.ResolveAccessor(e, e.ID)
	require.NoError(t, err)
	v, fetched := id.Get(c)
	assert.True(t, fetched)
	assert.Equal(t, int64(3), v)

	age, err := schema.ResolveAccessor(e, field.Int("age").Descriptor())
	require.NoError(t, err)
	require.NoError(t, age.Set(c, int64(40)), "values convert to the field type")
	assert.Equal(t, int32(40), c.Age)
	require.NoError(t, age.Set(c, nil))
	assert.Zero(t, c.Age)

	nick, err := schema.ResolveAccessor(e, field.String("nick").Descriptor())
	require.NoError(t, err)
	v, _ = nick.Get(c)
	assert.Nil(t, v)
	require.NoError(t, nick.Set(c, "a"))
	require.NotNil(t, c.Nick)
	assert.Equal(t, "a", *c.Nick)

	city, err := schema.ResolveAccessor(e, field.String("city").Field("Address.City").Descriptor())
	require.NoError(t, err)
	require.NoError(t, city.Set(c, "Paris"), "nil intermediate pointers are allocated")
	assert.Equal(t, "Paris", c.Address.City)

	_, err = schema.ResolveAccessor(e, field.String("missing").Descriptor())
	assert.True(t, persist.IsMappingError(err))
	assert.Error(t, age.Set(c, "forty"))
}

func TestFieldAccessorCell(t *testing.T) {
	e := customerEntity()
	c := &customer{}
	a, err := schema.ResolveAccessor(e, field.Text("note").Lazy().Descriptor())
	require.NoError(t, err)

	_, fetched := a.Get(c)
	assert.False(t, fetched)
	require.NoError(t, a.Set(c, "hello"))
	v, fetched := a.Get(c)
	assert.True(t, fetched)
	assert.Equal(t, "hello", v)
	a.Reset(c)
	_, fetched = a.Get(c)
	assert.False(t, fetched)
}

func TestMapAccessor(t *testing.T) {
	e := schema.New("Row").Map().ID(field.Int64("id")).Entity()
	a, err := schema.ResolveAccessor(e, field.String("name").Descriptor())
	require.NoError(t, err)
	require.IsType(t, schema.MapAccessor{}, a)

	m := map[string]any{}
	_, fetched := a.Get(m)
	assert.False(t, fetched)
	require.NoError(t, a.Set(m, "x"))
	v, fetched := a.Get(m)
	assert.True(t, fetched)
	assert.Equal(t, "x", v)
	a.Reset(m)
	assert.NotContains(t, m, "name")
	assert.Error(t, a.Set(customer{}, "x"))
}

func TestFuncAccessor(t *testing.T) {
	e := customerEntity()
	p := field.String("label").Accessor(
		func(obj any) any { return obj.(*customer).Name },
		func(obj any, v any) error { obj.(*customer).Name = v.(string); return nil },
	).Descriptor()
	a, err := schema.ResolveAccessor(e, p)
	require.NoError(t, err)
	require.IsType(t, schema.FuncAccessor{}, a)
	c := &customer{}
	require.NoError(t, a.Set(c, "bob"))
	v, _ := a.Get(c)
	assert.Equal(t, "bob", v)
}
