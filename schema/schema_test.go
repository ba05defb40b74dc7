package schema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/persist"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

func TestTableName(t *testing.T) {
	assert.Equal(t, "users", schema.TableName("User"))
	assert.Equal(t, "categories", schema.TableName("Category"))
}

func TestBuilder(t *testing.T) {
	e := schema.New("User").
		ID(field.Int64("id")).
		Fields(
			field.String("email").Unique(),
			field.Text("bio").Table("user_details").Lazy(),
			field.Int64("version").Version(),
		).
		Secondary(schema.Table{Name: "user_details", Key: []string{"user_id"}, Optional: true}).
		Cacheable().
		MustBuild()

	require.Len(t, e.Tables, 2)
	assert.Equal(t, schema.Table{Name: "users", Key: []string{"id"}}, e.Tables[0])
	assert.True(t, e.Tables[1].Optional)
	assert.Equal(t, schema.LockVersion, e.Lock, "a version property implies version locking")
	assert.Equal(t, "version", e.VersionProperty().Name)
	assert.NotNil(t, e.Property("bio"))
	assert.Nil(t, e.Property("missing"))
	assert.True(t, e.Cacheable)
	assert.Equal(t, "User", e.DiscriminatorValue())
	assert.IsType(t, map[string]any{}, e.Instantiate())
}

func TestBuilderHierarchy(t *testing.T) {
	animal := schema.New("Animal").
		Strategy(schema.SingleTable).
		ID(field.Int64("id")).
		Discriminator("kind", field.TypeString, "animal").
		Fields(field.String("name")).
		MustBuild()
	dog := schema.New("Dog").Extends(animal).DiscriminatorValue("dog").
		Fields(field.String("breed")).
		Entity()

	assert.Same(t, animal, dog.Super)
	assert.Equal(t, []*schema.Entity{dog}, animal.Subtypes)
	assert.Empty(t, dog.Tables, "single-table subtypes share the root table")
	assert.Equal(t, "kind", dog.Discriminator.Column)
	assert.Equal(t, "dog", dog.DiscriminatorValue())
	assert.Same(t, animal, dog.TopLevel())
	require.NoError(t, schema.Validate(animal))

	joinedRoot := schema.New("Vehicle").Strategy(schema.Joined).ID(field.Int64("id")).MustBuild()
	car := schema.New("Car").Extends(joinedRoot).Table("cars", "vehicle_id").Entity()
	assert.Equal(t, schema.Joined, car.Strategy)
	assert.Equal(t, []schema.Table{{Name: "cars", Key: []string{"vehicle_id"}}}, car.Tables)
	assert.Equal(t, []*schema.Entity{car}, joinedRoot.Descendants())
}

func mappingKinds(err error) []persist.MappingErrorKind {
	var kinds []persist.MappingErrorKind
	var walk func(error)
	walk = func(err error) {
		var agg *persist.AggregateError
		if errors.As(err, &agg) {
			for _, e := range agg.Errors {
				walk(e)
			}
			return
		}
		var me *persist.MappingError
		if errors.As(err, &me) {
			kinds = append(kinds, me.Kind)
		}
	}
	walk(err)
	return kinds
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *schema.Entity
		kinds []persist.MappingErrorKind
	}{
		{
			name: "Valid",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Fields(field.String("name")).Entity()
			},
		},
		{
			name: "MissingID",
			build: func() *schema.Entity {
				return schema.New("User").Fields(field.String("name")).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.UnresolvedColumn},
		},
		{
			name: "UnresolvedTable",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Fields(field.String("bio").Table("profiles")).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.UnresolvedTable},
		},
		{
			name: "TableNameFoldsCase",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).
					Secondary(schema.Table{Name: "Profiles", Key: []string{"user_id"}}).
					Fields(field.String("bio").Table("PROFILES")).Entity()
			},
		},
		{
			name: "OptionalRoot",
			build: func() *schema.Entity {
				e := schema.New("User").ID(field.Int64("id")).Entity()
				e.Tables[0].Optional = true
				return e
			},
			kinds: []persist.MappingErrorKind{persist.MalformedClosure},
		},
		{
			name: "VersionWithoutLock",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Fields(field.Int64("version").Version()).Lock(schema.LockAll).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.InvalidLockStyle},
		},
		{
			name: "VersionLockWithoutVersion",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Lock(schema.LockVersion).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.InvalidLockStyle},
		},
		{
			name: "DirtyWithoutDynamicUpdate",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Lock(schema.LockDirty).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.InvalidLockStyle},
		},
		{
			name: "StringVersion",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Fields(field.String("version").Version()).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.InvalidLockStyle},
		},
		{
			name: "DuplicateProperty",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Fields(field.String("name"), field.String("name")).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.MalformedClosure},
		},
		{
			name: "BadWriter",
			build: func() *schema.Entity {
				return schema.New("User").ID(field.Int64("id")).Fields(field.String("name").Writer("lower(name)")).Entity()
			},
			kinds: []persist.MappingErrorKind{persist.MalformedClosure},
		},
		{
			name: "SingleTableWithoutDiscriminator",
			build: func() *schema.Entity {
				root := schema.New("Animal").ID(field.Int64("id")).Entity()
				schema.New("Dog").Extends(root).Entity()
				return root
			},
			kinds: []persist.MappingErrorKind{persist.MalformedClosure},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.build())
			if tt.kinds == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, persist.ErrInvalidMapping)
			assert.Equal(t, tt.kinds, mappingKinds(err))
		})
	}
}

func TestSameIdentifier(t *testing.T) {
	assert.True(t, schema.SameIdentifier("users", "USERS"))
	assert.True(t, schema.SameIdentifier("äpfel", "ÄPFEL"))
	assert.False(t, schema.SameIdentifier("users", "user"))
}

func TestParseStrategyAndLock(t *testing.T) {
	for _, s := range []schema.Strategy{schema.SingleTable, schema.Joined, schema.TablePerClass} {
		got, ok := schema.ParseStrategy(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	for _, l := range []schema.LockStyle{schema.LockNone, schema.LockVersion, schema.LockAll, schema.LockDirty} {
		got, ok := schema.ParseLockStyle(l.String())
		assert.True(t, ok)
		assert.Equal(t, l, got)
	}
	_, ok := schema.ParseLockStyle("pessimistic")
	assert.False(t, ok)
}
