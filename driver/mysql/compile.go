// Package mysql implements the anvil driver contract on MySQL through
// database/sql and go-sql-driver/mysql. This file holds the pure
// compilation layer: condition trees and query descriptions become
// parameterized SQL with ? placeholders and backtick-quoted identifiers.
package mysql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/anvilkit/anvil/core"
)

// quoteIdent backtick-quotes an identifier, mysql style.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func qualifyTable(database, table string) string {
	if database != "" {
		return quoteIdent(database) + "." + quoteIdent(table)
	}
	return quoteIdent(table)
}

// buildCondition compiles a condition tree into a WHERE fragment,
// appending bind values to argList in clause order so the positional ?
// placeholders line up.
func buildCondition(condition *core.Condition, argList *[]any) string {
	if condition == nil {
		return "1=1"
	}
	if condition.Operator != nil && condition.Operator.IsLogical() {
		partList := []string{}
		for _, child := range condition.Children {
			partList = append(partList, buildCondition(child, argList))
		}
		switch *condition.Operator {
		case core.OpAnd:
			return "(" + strings.Join(partList, " AND ") + ")"
		case core.OpOr:
			return "(" + strings.Join(partList, " OR ") + ")"
		case core.OpNot:
			return "NOT (" + strings.Join(partList, " AND ") + ")"
		}
	}
	if condition.Operator == nil {
		return "1=1"
	}

	column := quoteIdent(condition.FieldName)
	bind := func(value any) string {
		*argList = append(*argList, value)
		return "?"
	}

	switch *condition.Operator {
	case core.OpNil:
		return column + " IS NULL"
	case core.OpNotNil:
		return column + " IS NOT NULL"
	case core.OpEq:
		return fmt.Sprintf("%s = %s", column, bind(condition.Value))
	case core.OpNe:
		return fmt.Sprintf("%s <> %s", column, bind(condition.Value))
	case core.OpGt:
		return fmt.Sprintf("%s > %s", column, bind(condition.Value))
	case core.OpGte:
		return fmt.Sprintf("%s >= %s", column, bind(condition.Value))
	case core.OpLt:
		return fmt.Sprintf("%s < %s", column, bind(condition.Value))
	case core.OpLte:
		return fmt.Sprintf("%s <= %s", column, bind(condition.Value))
	case core.OpLike:
		return fmt.Sprintf("%s LIKE %s", column, bind(condition.Value))
	case core.OpNotLike:
		return fmt.Sprintf("%s NOT LIKE %s", column, bind(condition.Value))
	case core.OpILike:
		// MySQL has no ILIKE; lower both sides instead.
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", column, bind(condition.Value))
	case core.OpIn, core.OpNotIn:
		valueList, _ := condition.Value.([]any)
		if len(valueList) == 0 {
			if *condition.Operator == core.OpIn {
				return "1=0"
			}
			return "1=1"
		}
		placeholderList := make([]string, 0, len(valueList))
		for _, value := range valueList {
			placeholderList = append(placeholderList, bind(value))
		}
		keyword := "IN"
		if *condition.Operator == core.OpNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", column, keyword, strings.Join(placeholderList, ", "))
	case core.OpBetween, core.OpNotBetween:
		bounds, _ := condition.Value.([]any)
		if len(bounds) != 2 {
			return "1=0"
		}
		keyword := "BETWEEN"
		if *condition.Operator == core.OpNotBetween {
			keyword = "NOT BETWEEN"
		}
		return fmt.Sprintf("%s %s %s AND %s", column, keyword, bind(bounds[0]), bind(bounds[1]))
	case core.OpRaw:
		*argList = append(*argList, condition.RawArgs...)
		return "(" + condition.RawSQL + ")"
	}
	return "1=1"
}

// compileSelect renders a Description into a full SELECT statement.
func compileSelect(desc *core.Description) (string, []any) {
	var sql strings.Builder
	argList := []any{}

	sql.WriteString("SELECT ")
	if desc.Distinct {
		sql.WriteString("DISTINCT ")
	}
	if len(desc.Columns) == 0 {
		sql.WriteString("*")
	} else {
		columnList := make([]string, 0, len(desc.Columns))
		for _, column := range desc.Columns {
			columnList = append(columnList, quoteIdent(column))
		}
		sql.WriteString(strings.Join(columnList, ", "))
	}
	sql.WriteString(" FROM " + qualifyTable(desc.Database, desc.Collection))
	sql.WriteString(compileJoins(desc))
	sql.WriteString(" WHERE " + buildCondition(desc.Condition, &argList))

	if len(desc.GroupBy) > 0 {
		groupList := make([]string, 0, len(desc.GroupBy))
		for _, column := range desc.GroupBy {
			groupList = append(groupList, quoteIdent(column))
		}
		sql.WriteString(" GROUP BY " + strings.Join(groupList, ", "))
	}
	if desc.Having != nil {
		sql.WriteString(" HAVING " + buildCondition(desc.Having, &argList))
	}

	if len(desc.Sort) > 0 {
		orderPartList := []string{}
		for _, sortItem := range desc.Sort {
			direction := "ASC"
			if sortItem.Order < 0 {
				direction = "DESC"
			}
			orderPartList = append(orderPartList, quoteIdent(sortItem.FieldName)+" "+direction)
		}
		sql.WriteString(" ORDER BY " + strings.Join(orderPartList, ", "))
	}

	if desc.Limit > 0 {
		fmt.Fprintf(&sql, " LIMIT %d", desc.Limit)
	}
	if desc.Offset > 0 {
		// MySQL requires LIMIT when OFFSET is present.
		if desc.Limit <= 0 {
			sql.WriteString(" LIMIT 18446744073709551615")
		}
		fmt.Fprintf(&sql, " OFFSET %d", desc.Offset)
	}

	switch desc.Lock {
	case core.LockForUpdate:
		sql.WriteString(" FOR UPDATE")
	case core.LockShared:
		sql.WriteString(" LOCK IN SHARE MODE")
	}
	if desc.Lock == core.LockForUpdate {
		if desc.SkipLocked {
			sql.WriteString(" SKIP LOCKED")
		} else if desc.NoWait {
			sql.WriteString(" NOWAIT")
		}
	}

	return sql.String(), argList
}

// compileJoins renders the JOIN clauses shared by SELECT and aggregate
// statements.
func compileJoins(desc *core.Description) string {
	var sql strings.Builder
	for _, join := range desc.Joins {
		switch join.Kind {
		case core.JoinLeft:
			sql.WriteString(" LEFT JOIN ")
		case core.JoinRight:
			sql.WriteString(" RIGHT JOIN ")
		case core.JoinCross:
			sql.WriteString(" CROSS JOIN " + quoteIdent(join.Table))
			continue
		default:
			sql.WriteString(" INNER JOIN ")
		}
		fmt.Fprintf(&sql, "%s ON %s.%s = %s.%s",
			quoteIdent(join.Table),
			quoteIdent(desc.Collection), quoteIdent(join.LocalColumn),
			quoteIdent(join.Table), quoteIdent(join.ForeignColumn))
	}
	return sql.String()
}

// compileAggregate renders the aggregate SELECT for desc, carrying the
// builder's joins and grouping. A distinct count over a single column
// becomes COUNT(DISTINCT col).
func compileAggregate(desc *core.Description, agg core.Aggregate) (string, []any) {
	argList := []any{}
	expr := "COUNT(*)"
	if agg.Kind != core.AggregateCount {
		expr = fmt.Sprintf("%s(%s)", strings.ToUpper(string(agg.Kind)), quoteIdent(agg.Column))
	} else if column := countColumn(desc, agg); column != "" {
		keyword := ""
		if desc.Distinct {
			keyword = "DISTINCT "
		}
		expr = fmt.Sprintf("COUNT(%s%s)", keyword, quoteIdent(column))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s WHERE %s",
		expr,
		qualifyTable(desc.Database, desc.Collection),
		compileJoins(desc),
		buildCondition(desc.Condition, &argList))
	if len(desc.GroupBy) > 0 {
		groupList := make([]string, 0, len(desc.GroupBy))
		for _, column := range desc.GroupBy {
			groupList = append(groupList, quoteIdent(column))
		}
		sql += " GROUP BY " + strings.Join(groupList, ", ")
	}
	return sql, argList
}

// countColumn resolves the column a COUNT targets: the explicit
// aggregate column, or the single selected column when the builder is
// distinct over exactly one.
func countColumn(desc *core.Description, agg core.Aggregate) string {
	if agg.Column != "" && agg.Column != "*" {
		return agg.Column
	}
	if desc.Distinct && len(desc.Columns) == 1 {
		return desc.Columns[0]
	}
	return ""
}

// compileInsert renders an INSERT for one row with deterministic column order.
func compileInsert(target core.Collection, values core.Row) (string, []any) {
	columnList := sortedColumns(values)
	quotedList := make([]string, 0, len(columnList))
	placeholderList := make([]string, 0, len(columnList))
	argList := make([]any, 0, len(columnList))
	for _, column := range columnList {
		quotedList = append(quotedList, quoteIdent(column))
		placeholderList = append(placeholderList, "?")
		argList = append(argList, values[column])
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifyTable(target.Database, target.Name),
		strings.Join(quotedList, ", "),
		strings.Join(placeholderList, ", "))
	return sql, argList
}

// compileUpdate renders an UPDATE restricted to the given changes.
func compileUpdate(target core.Collection, condition *core.Condition, changes core.Changes) (string, []any) {
	argList := []any{}
	setPartList := []string{}
	for _, column := range sortedColumns(core.Row(changes)) {
		argList = append(argList, changes[column])
		setPartList = append(setPartList, quoteIdent(column)+" = ?")
	}
	whereClause := buildCondition(condition, &argList)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		qualifyTable(target.Database, target.Name),
		strings.Join(setPartList, ", "),
		whereClause)
	return sql, argList
}

// compileUpsert renders the native INSERT ... ON DUPLICATE KEY UPDATE.
// The conflict keys are implied by the table's unique constraints; only
// the non-key columns are rewritten on conflict.
func compileUpsert(target core.Collection, values core.Row, conflictKeys []string) (string, []any) {
	sql, argList := compileInsert(target, values)
	updatePartList := []string{}
	for _, column := range sortedColumns(values) {
		if containsString(conflictKeys, column) {
			continue
		}
		updatePartList = append(updatePartList,
			fmt.Sprintf("%s = VALUES(%s)", quoteIdent(column), quoteIdent(column)))
	}
	if len(updatePartList) == 0 {
		// Every column is part of the key; make the conflict arm a no-op.
		column := quoteIdent(conflictKeys[0])
		updatePartList = append(updatePartList, column+" = "+column)
	}
	sql += " ON DUPLICATE KEY UPDATE " + strings.Join(updatePartList, ", ")
	return sql, argList
}

func sortedColumns(values core.Row) []string {
	columnList := make([]string, 0, len(values))
	for column := range values {
		columnList = append(columnList, column)
	}
	sort.Strings(columnList)
	return columnList
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
