// Package field defines the logical column types of mapped properties.
//
// Types are dialect independent; a dialect.Dialect turns them into column
// type names:
//
//	d.ColumnTypeName(field.TypeString, 255, 0, 0)  // "varchar(255)"
//	d.ColumnTypeName(field.TypeDecimal, 0, 10, 2)  // "numeric(10,2)"
//
// Mapping files refer to types by name:
//
//	properties:
//	  - name: price
//	    type: decimal
//	    precision: 10
//	    scale: 2
package field
