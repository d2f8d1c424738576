// Package schema defines the DDL contract consumed by the migration
// runner: backend-independent table blueprints, the DDL interface SQL
// drivers implement, and the batch-ordered Migrator.
package schema

// ColumnType is the abstract column type a dialect maps onto its native
// type. The set mirrors what the blueprints can express; each SQL driver
// owns the dialect type map.
type ColumnType string

const (
	TypeIncrements ColumnType = "increments" // auto-incrementing integer primary key
	TypeString     ColumnType = "string"     // bounded varchar (Length, default 255)
	TypeText       ColumnType = "text"
	TypeInteger    ColumnType = "integer"
	TypeBigInt     ColumnType = "bigInteger"
	TypeFloat      ColumnType = "float"
	TypeDecimal    ColumnType = "decimal" // Precision/Scale
	TypeBoolean    ColumnType = "boolean"
	TypeTimestamp  ColumnType = "timestamp"
	TypeDate       ColumnType = "date"
	TypeJSON       ColumnType = "json"
)

// Reference describes a foreign-key constraint on a column.
type Reference struct {
	Table  string
	Column string
}

// Column is one column definition inside a Blueprint.
type Column struct {
	Name      string
	Type      ColumnType
	Length    int
	Precision int
	Scale     int

	Nullable   bool
	Unique     bool
	PrimaryKey bool

	// HasDefault distinguishes "no default" from "default null/zero".
	HasDefault bool
	Default    any

	References *Reference
}

// Nullable marks the column nullable and returns it for chaining.
func (c *Column) SetNullable() *Column {
	c.Nullable = true
	return c
}

// SetUnique adds a unique constraint.
func (c *Column) SetUnique() *Column {
	c.Unique = true
	return c
}

// SetDefault sets the column default.
func (c *Column) SetDefault(value any) *Column {
	c.HasDefault = true
	c.Default = value
	return c
}

// SetReferences adds a foreign-key constraint.
func (c *Column) SetReferences(table, column string) *Column {
	c.References = &Reference{Table: table, Column: column}
	return c
}

// Blueprint accumulates column definitions for a CREATE TABLE or an
// ALTER TABLE produced through the fluent column helpers.
//
// Example:
//
//	bp := schema.NewBlueprint("users")
//	bp.Increments("id")
//	bp.String("email", 255).SetUnique()
//	bp.Timestamp("created_at").SetNullable()
type Blueprint struct {
	Table   string
	Columns []*Column
}

// NewBlueprint starts a blueprint for the given table.
func NewBlueprint(table string) *Blueprint {
	return &Blueprint{Table: table}
}

func (b *Blueprint) add(column *Column) *Column {
	b.Columns = append(b.Columns, column)
	return column
}

// Increments adds an auto-incrementing primary key column.
func (b *Blueprint) Increments(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeIncrements, PrimaryKey: true})
}

// String adds a bounded varchar column.
func (b *Blueprint) String(name string, length int) *Column {
	if length <= 0 {
		length = 255
	}
	return b.add(&Column{Name: name, Type: TypeString, Length: length})
}

// Text adds an unbounded text column.
func (b *Blueprint) Text(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeText})
}

// Integer adds a 32-bit integer column.
func (b *Blueprint) Integer(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeInteger})
}

// BigInteger adds a 64-bit integer column.
func (b *Blueprint) BigInteger(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeBigInt})
}

// Float adds a double-precision column.
func (b *Blueprint) Float(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeFloat})
}

// Decimal adds a fixed-precision numeric column.
func (b *Blueprint) Decimal(name string, precision, scale int) *Column {
	return b.add(&Column{Name: name, Type: TypeDecimal, Precision: precision, Scale: scale})
}

// Boolean adds a boolean column.
func (b *Blueprint) Boolean(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeBoolean})
}

// Timestamp adds a timestamp column.
func (b *Blueprint) Timestamp(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeTimestamp})
}

// Date adds a date column.
func (b *Blueprint) Date(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeDate})
}

// JSON adds a json document column.
func (b *Blueprint) JSON(name string) *Column {
	return b.add(&Column{Name: name, Type: TypeJSON})
}

// Timestamps adds nullable created_at/updated_at columns.
func (b *Blueprint) Timestamps() {
	b.Timestamp("created_at").SetNullable()
	b.Timestamp("updated_at").SetNullable()
}

// SoftDeletes adds a nullable deleted_at column.
func (b *Blueprint) SoftDeletes() {
	b.Timestamp("deleted_at").SetNullable()
}
