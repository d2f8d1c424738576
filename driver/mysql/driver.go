package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/anvilkit/anvil/core"
)

//region Driver

// Driver implements core.Driver on MySQL through database/sql and
// go-sql-driver/mysql.
type Driver struct {
	db     *sql.DB
	config core.Config
}

var _ core.Driver = (*Driver)(nil)

// New opens a pooled mysql driver from a core.Config, mapping pool
// bounds and timeouts onto the database/sql handle.
func New(ctx context.Context, config core.Config) (*Driver, error) {
	dsnConfig := gomysql.NewConfig()
	dsnConfig.User = config.Username
	dsnConfig.Passwd = config.Password
	dsnConfig.Net = "tcp"
	dsnConfig.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	dsnConfig.DBName = config.Database
	dsnConfig.ParseTime = true
	if config.ConnectTimeout > 0 {
		dsnConfig.Timeout = config.ConnectTimeout
	}
	if config.StatementTimeout > 0 {
		dsnConfig.ReadTimeout = config.StatementTimeout
		dsnConfig.WriteTimeout = config.StatementTimeout
	}
	if config.SSLMode != "" && config.SSLMode != "disable" {
		dsnConfig.TLSConfig = config.SSLMode
	}
	return NewFromDSN(ctx, dsnConfig.FormatDSN(), config)
}

// NewFromDSN opens from a raw go-sql-driver DSN.
func NewFromDSN(ctx context.Context, dsn string, config core.Config) (*Driver, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, &core.ConnectionError{Connection: "mysql", Cause: err}
	}
	if config.PoolMax > 0 {
		db.SetMaxOpenConns(config.PoolMax)
	}
	if config.PoolMin > 0 {
		db.SetMaxIdleConns(config.PoolMin)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &core.ConnectionError{Connection: "mysql", Cause: err}
	}
	return &Driver{db: db, config: config}, nil
}

// DB exposes the underlying handle, mainly for stats.
func (driver *Driver) DB() *sql.DB { return driver.db }

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.db.PingContext(ctx)
}

func (driver *Driver) Ping(ctx context.Context) error {
	return driver.db.PingContext(ctx)
}

func (driver *Driver) Close(ctx context.Context) error {
	return driver.db.Close()
}

//endregion

//region transaction plumbing

type sqlTransaction struct {
	transaction *sql.Tx
}

func (t *sqlTransaction) Commit(ctx context.Context) error {
	return t.transaction.Commit()
}

func (t *sqlTransaction) Rollback(ctx context.Context) error {
	return t.transaction.Rollback()
}

func (driver *Driver) Begin(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTransaction{transaction: tx}, nil
}

// exec and query route through a context-carried transaction when one is
// present, so transactional statements stay on their dedicated handle.
func (driver *Driver) exec(ctx context.Context, sqlQuery string, args ...any) (sql.Result, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if sqlTx, ok := tx.(*sqlTransaction); ok {
			return sqlTx.transaction.ExecContext(ctx, sqlQuery, args...)
		}
	}
	return driver.db.ExecContext(ctx, sqlQuery, args...)
}

func (driver *Driver) query(ctx context.Context, sqlQuery string, args ...any) (*sql.Rows, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if sqlTx, ok := tx.(*sqlTransaction); ok {
			return sqlTx.transaction.QueryContext(ctx, sqlQuery, args...)
		}
	}
	return driver.db.QueryContext(ctx, sqlQuery, args...)
}

func (driver *Driver) queryRow(ctx context.Context, sqlQuery string, args ...any) *sql.Row {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if sqlTx, ok := tx.(*sqlTransaction); ok {
			return sqlTx.transaction.QueryRowContext(ctx, sqlQuery, args...)
		}
	}
	return driver.db.QueryRowContext(ctx, sqlQuery, args...)
}

//endregion

//region reads

// collectRows drains a result set into generic rows. The text protocol
// hands most values back as []byte; those become strings so key matching
// and casts see comparable values.
func (driver *Driver) collectRows(rows *sql.Rows) ([]core.Row, error) {
	defer rows.Close()
	columnList, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var resultList []core.Row
	for rows.Next() {
		valueList := make([]any, len(columnList))
		pointerList := make([]any, len(columnList))
		for i := range valueList {
			pointerList[i] = &valueList[i]
		}
		if err := rows.Scan(pointerList...); err != nil {
			return nil, err
		}
		rowMap := make(core.Row, len(columnList))
		for i, column := range columnList {
			rowMap[column] = normalizeValue(valueList[i])
		}
		resultList = append(resultList, rowMap)
	}
	return resultList, rows.Err()
}

func normalizeValue(value any) any {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}

func (driver *Driver) Select(ctx context.Context, desc *core.Description) ([]core.Row, error) {
	sqlQuery, argList := compileSelect(desc)
	rows, err := driver.query(ctx, sqlQuery, argList...)
	if err != nil {
		return nil, err
	}
	return driver.collectRows(rows)
}

func (driver *Driver) Aggregate(ctx context.Context, desc *core.Description, agg core.Aggregate) (any, error) {
	sqlQuery, argList := compileAggregate(desc, agg)
	var result any
	if err := driver.queryRow(ctx, sqlQuery, argList...).Scan(&result); err != nil {
		return nil, err
	}
	return normalizeValue(result), nil
}

func (driver *Driver) Raw(ctx context.Context, query string, args ...any) ([]core.Row, error) {
	rows, err := driver.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return driver.collectRows(rows)
}

//endregion

//region writes

func (driver *Driver) Insert(ctx context.Context, target core.Collection, values core.Row) (any, error) {
	sqlQuery, argList := compileInsert(target, values)
	result, err := driver.exec(ctx, sqlQuery, argList...)
	if err != nil {
		return nil, err
	}
	// Surface the generated key only when the caller did not supply one.
	if _, supplied := values[core.IDField]; supplied {
		return nil, nil
	}
	generated, err := result.LastInsertId()
	if err != nil || generated == 0 {
		return nil, nil
	}
	return generated, nil
}

func (driver *Driver) InsertMany(ctx context.Context, target core.Collection, values []core.Row) error {
	for _, row := range values {
		sqlQuery, argList := compileInsert(target, row)
		if _, err := driver.exec(ctx, sqlQuery, argList...); err != nil {
			return err
		}
	}
	return nil
}

func (driver *Driver) Update(ctx context.Context, target core.Collection, condition *core.Condition, changes core.Changes) (int64, error) {
	sqlQuery, argList := compileUpdate(target, condition, changes)
	result, err := driver.exec(ctx, sqlQuery, argList...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (driver *Driver) Delete(ctx context.Context, target core.Collection, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause := buildCondition(condition, &argList)
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", qualifyTable(target.Database, target.Name), whereClause)
	result, err := driver.exec(ctx, sqlQuery, argList...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (driver *Driver) Upsert(ctx context.Context, target core.Collection, values core.Row, conflictKeys []string) error {
	sqlQuery, argList := compileUpsert(target, values, conflictKeys)
	_, err := driver.exec(ctx, sqlQuery, argList...)
	return err
}

//endregion
