// Package schema provides the boot-time mapping model of persistent entities.
//
// An Entity describes the tables an entity type spans, its identifier, its
// properties (see the [field] package), its optimistic lock style and its
// place in an inheritance hierarchy. Mappings are declared in Go with the
// fluent Builder or loaded from YAML files, validated once with Validate,
// and then handed to the engine, which never mutates them.
//
// # Quick Start
//
//	type User struct {
//	    ID      int64
//	    Email   string
//	    Bio     engine.LazyCell[string]
//	    Version int64
//	}
//
//	user := schema.New("User").
//	    Type(User{}).
//	    ID(field.Int64("id")).
//	    Fields(
//	        field.String("email").Unique().Writer("lower(?)"),
//	        field.Text("bio").Table("user_details").FetchGroup("profile"),
//	        field.Int64("version").Version(),
//	    ).
//	    Secondary(schema.Table{Name: "user_details", Key: []string{"user_id"}, Optional: true}).
//	    MustBuild()
//
// # Tables
//
// Table 0 is the root table and holds the identifier. Secondary tables are
// keyed by columns referencing the root identifier. A property names its
// owning table; an empty name means the root table. Optional tables hold a
// row only while one of their columns is not null, inverse tables are read
// but never written, and cascade-delete tables are cleaned up by their
// foreign key.
//
// # Inheritance
//
// Subtypes are declared with Extends and list only what they add:
//
//	dog := schema.New("Dog").Extends(animal).DiscriminatorValue("dog").
//	    Fields(field.String("breed")).
//	    Entity()
//
// With SingleTable the subtype shares the root table. With Joined it adds
// its own table keyed by the root identifier. With TablePerClass its table
// holds every inherited column as well.
//
// # Mapping Files
//
//	entities:
//	  - name: User
//	    table: users
//	    id: {name: id, type: int64}
//	    lock: version
//	    properties:
//	      - {name: email, type: string, unique: true}
//	      - {name: version, type: int64, version: true}
//
// Entities loaded from files are held as map[string]any instances.
package schema
