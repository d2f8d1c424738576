package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/anvilkit/anvil/schema"
)

// Driver implements schema.DDL by translating blueprints through the
// postgres type map and introspecting pg_indexes.
var _ schema.DDL = (*Driver)(nil)

// columnType maps an abstract column type onto its postgres native type.
func columnType(column *schema.Column) string {
	switch column.Type {
	case schema.TypeIncrements:
		return "BIGSERIAL"
	case schema.TypeString:
		length := column.Length
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case schema.TypeText:
		return "TEXT"
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeBigInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeDecimal:
		return fmt.Sprintf("NUMERIC(%d, %d)", column.Precision, column.Scale)
	case schema.TypeBoolean:
		return "BOOLEAN"
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeJSON:
		return "JSONB"
	}
	return "TEXT"
}

// columnDefinition renders one column clause of a CREATE/ALTER TABLE.
func columnDefinition(column *schema.Column) string {
	var def strings.Builder
	def.WriteString(quoteIdent(column.Name) + " " + columnType(column))
	if column.PrimaryKey {
		def.WriteString(" PRIMARY KEY")
	}
	if !column.Nullable && !column.PrimaryKey {
		def.WriteString(" NOT NULL")
	}
	if column.Unique && !column.PrimaryKey {
		def.WriteString(" UNIQUE")
	}
	if column.HasDefault {
		fmt.Fprintf(&def, " DEFAULT %s", renderDefault(column.Default))
	}
	if column.References != nil {
		fmt.Fprintf(&def, " REFERENCES %s (%s)",
			quoteIdent(column.References.Table), quoteIdent(column.References.Column))
	}
	return def.String()
}

func renderDefault(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return "NULL"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (driver *Driver) CreateTable(ctx context.Context, blueprint *schema.Blueprint) error {
	columnList := make([]string, 0, len(blueprint.Columns))
	for _, column := range blueprint.Columns {
		columnList = append(columnList, columnDefinition(column))
	}
	sqlQuery := fmt.Sprintf("CREATE TABLE %s (%s)",
		quoteIdent(blueprint.Table), strings.Join(columnList, ", "))
	_, err := driver.exec(ctx, sqlQuery)
	return err
}

func (driver *Driver) DropTable(ctx context.Context, table string) error {
	_, err := driver.exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table))
	return err
}

func (driver *Driver) RenameTable(ctx context.Context, from, to string) error {
	_, err := driver.exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quoteIdent(from), quoteIdent(to)))
	return err
}

func (driver *Driver) HasTable(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := driver.queryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
		table).Scan(&exists)
	return exists, err
}

func (driver *Driver) AddColumn(ctx context.Context, table string, column *schema.Column) error {
	sqlQuery := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoteIdent(table), columnDefinition(column))
	_, err := driver.exec(ctx, sqlQuery)
	return err
}

func (driver *Driver) DropColumn(ctx context.Context, table, column string) error {
	sqlQuery := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(table), quoteIdent(column))
	_, err := driver.exec(ctx, sqlQuery)
	return err
}

func (driver *Driver) CreateIndex(ctx context.Context, table, name string, columns []string, unique bool) error {
	columnList := make([]string, 0, len(columns))
	for _, column := range columns {
		columnList = append(columnList, quoteIdent(column))
	}
	keyword := "INDEX"
	if unique {
		keyword = "UNIQUE INDEX"
	}
	sqlQuery := fmt.Sprintf("CREATE %s %s ON %s (%s)",
		keyword, quoteIdent(name), quoteIdent(table), strings.Join(columnList, ", "))
	_, err := driver.exec(ctx, sqlQuery)
	return err
}

func (driver *Driver) DropIndex(ctx context.Context, table, name string) error {
	_, err := driver.exec(ctx, "DROP INDEX IF EXISTS "+quoteIdent(name))
	return err
}

// ListIndexes introspects pg_indexes for the given table.
func (driver *Driver) ListIndexes(ctx context.Context, table string) ([]schema.Index, error) {
	rows, err := driver.Raw(ctx,
		"SELECT indexname, indexdef FROM pg_indexes WHERE tablename = $1 ORDER BY indexname",
		table)
	if err != nil {
		return nil, err
	}
	indexList := make([]schema.Index, 0, len(rows))
	for _, row := range rows {
		name, _ := row["indexname"].(string)
		definition, _ := row["indexdef"].(string)
		indexList = append(indexList, schema.Index{
			Name:    name,
			Table:   table,
			Columns: parseIndexColumns(definition),
			Unique:  strings.Contains(definition, "UNIQUE INDEX"),
			Primary: strings.HasSuffix(name, "_pkey"),
		})
	}
	return indexList, nil
}

// parseIndexColumns extracts the parenthesized column list from an
// indexdef statement.
func parseIndexColumns(definition string) []string {
	open := strings.Index(definition, "(")
	closing := strings.LastIndex(definition, ")")
	if open < 0 || closing <= open {
		return nil
	}
	rawList := strings.Split(definition[open+1:closing], ",")
	columnList := make([]string, 0, len(rawList))
	for _, raw := range rawList {
		columnList = append(columnList, strings.Trim(strings.TrimSpace(raw), `"`))
	}
	return columnList
}
