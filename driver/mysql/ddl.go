package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/anvilkit/anvil/schema"
)

// Driver implements schema.DDL by translating blueprints through the
// mysql type map and introspecting information_schema.statistics.
var _ schema.DDL = (*Driver)(nil)

// columnType maps an abstract column type onto its mysql native type.
func columnType(column *schema.Column) string {
	switch column.Type {
	case schema.TypeIncrements:
		return "BIGINT UNSIGNED AUTO_INCREMENT"
	case schema.TypeString:
		length := column.Length
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case schema.TypeText:
		return "TEXT"
	case schema.TypeInteger:
		return "INT"
	case schema.TypeBigInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE"
	case schema.TypeDecimal:
		return fmt.Sprintf("DECIMAL(%d, %d)", column.Precision, column.Scale)
	case schema.TypeBoolean:
		return "TINYINT(1)"
	case schema.TypeTimestamp:
		return "DATETIME(6)"
	case schema.TypeDate:
		return "DATE"
	case schema.TypeJSON:
		return "JSON"
	}
	return "TEXT"
}

// columnDefinition renders one column clause of a CREATE/ALTER TABLE.
func columnDefinition(column *schema.Column) string {
	var def strings.Builder
	def.WriteString(quoteIdent(column.Name) + " " + columnType(column))
	if !column.Nullable && !column.PrimaryKey {
		def.WriteString(" NOT NULL")
	}
	if column.PrimaryKey {
		def.WriteString(" PRIMARY KEY")
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
	_, err := driver.exec(ctx, fmt.Sprintf("RENAME TABLE %s TO %s", quoteIdent(from), quoteIdent(to)))
	return err
}

func (driver *Driver) HasTable(ctx context.Context, table string) (bool, error) {
	var count int64
	err := driver.queryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		table).Scan(&count)
	return count > 0, err
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
	// MySQL scopes indexes to their table.
	sqlQuery := fmt.Sprintf("DROP INDEX %s ON %s", quoteIdent(name), quoteIdent(table))
	_, err := driver.exec(ctx, sqlQuery)
	return err
}

// ListIndexes introspects information_schema.statistics for the given
// table, folding the per-column rows into one entry per index.
func (driver *Driver) ListIndexes(ctx context.Context, table string) ([]schema.Index, error) {
	rows, err := driver.Raw(ctx,
		"SELECT index_name, column_name, non_unique FROM information_schema.statistics "+
			"WHERE table_schema = DATABASE() AND table_name = ? ORDER BY index_name, seq_in_index",
		table)
	if err != nil {
		return nil, err
	}
	indexList := []schema.Index{}
	position := map[string]int{}
	for _, row := range rows {
		name := fmt.Sprintf("%v", row["index_name"])
		column := fmt.Sprintf("%v", row["column_name"])
		if i, seen := position[name]; seen {
			indexList[i].Columns = append(indexList[i].Columns, column)
			continue
		}
		nonUnique := fmt.Sprintf("%v", row["non_unique"])
		position[name] = len(indexList)
		indexList = append(indexList, schema.Index{
			Name:    name,
			Table:   table,
			Columns: []string{column},
			Unique:  nonUnique == "0",
			Primary: name == "PRIMARY",
		})
	}
	return indexList, nil
}
