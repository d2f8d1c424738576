package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anvilkit/anvil/core"
)

//region Driver

// Driver implements core.Driver on PostgreSQL through a pgxpool.Pool.
type Driver struct {
	pool   *pgxpool.Pool
	config core.Config
}

var _ core.Driver = (*Driver)(nil)

// New connects a pooled postgres driver from a core.Config, mapping pool
// bounds, SSL, and timeouts onto the pgx connection string.
func New(ctx context.Context, config core.Config) (*Driver, error) {
	dsn := buildDSN(config)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &core.ConnectionError{Connection: "postgres", Cause: err}
	}
	if config.PoolMax > 0 {
		poolConfig.MaxConns = int32(config.PoolMax)
	}
	if config.PoolMin > 0 {
		poolConfig.MinConns = int32(config.PoolMin)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &core.ConnectionError{Connection: "postgres", Cause: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &core.ConnectionError{Connection: "postgres", Cause: err}
	}
	return &Driver{pool: pool, config: config}, nil
}

// NewFromDSN connects from a raw pgx connection string.
func NewFromDSN(ctx context.Context, dsn string) (*Driver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &core.ConnectionError{Connection: "postgres", Cause: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &core.ConnectionError{Connection: "postgres", Cause: err}
	}
	return &Driver{pool: pool}, nil
}

func buildDSN(config core.Config) string {
	query := url.Values{}
	if config.SSLMode != "" {
		query.Set("sslmode", config.SSLMode)
	}
	if config.ConnectTimeout > 0 {
		query.Set("connect_timeout", fmt.Sprintf("%d", int(config.ConnectTimeout/time.Second)))
	}
	if config.StatementTimeout > 0 {
		query.Set("options", fmt.Sprintf("-c statement_timeout=%d", config.StatementTimeout.Milliseconds()))
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.Username, config.Password),
		Host:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:     "/" + config.Database,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// Pool exposes the underlying pool, mainly for stats.
func (driver *Driver) Pool() *pgxpool.Pool { return driver.pool }

func (driver *Driver) Connect(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *Driver) Ping(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *Driver) Close(ctx context.Context) error {
	driver.pool.Close()
	return nil
}

//endregion

//region transaction plumbing

type pgTransaction struct {
	transaction pgx.Tx
}

func (t *pgTransaction) Commit(ctx context.Context) error {
	return t.transaction.Commit(ctx)
}

func (t *pgTransaction) Rollback(ctx context.Context) error {
	return t.transaction.Rollback(ctx)
}

func (driver *Driver) Begin(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &pgTransaction{transaction: tx}, nil
}

// exec and query route through a context-carried transaction when one is
// present, so transactional statements stay on their dedicated handle.
func (driver *Driver) exec(ctx context.Context, sqlQuery string, args ...any) (int64, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*pgTransaction); ok {
			tag, err := pgTx.transaction.Exec(ctx, sqlQuery, args...)
			return tag.RowsAffected(), err
		}
	}
	tag, err := driver.pool.Exec(ctx, sqlQuery, args...)
	return tag.RowsAffected(), err
}

func (driver *Driver) query(ctx context.Context, sqlQuery string, args ...any) (pgx.Rows, error) {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*pgTransaction); ok {
			return pgTx.transaction.Query(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.Query(ctx, sqlQuery, args...)
}

func (driver *Driver) queryRow(ctx context.Context, sqlQuery string, args ...any) pgx.Row {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*pgTransaction); ok {
			return pgTx.transaction.QueryRow(ctx, sqlQuery, args...)
		}
	}
	return driver.pool.QueryRow(ctx, sqlQuery, args...)
}

//endregion

//region reads

func (driver *Driver) collectRows(rows pgx.Rows) ([]core.Row, error) {
	defer rows.Close()
	columnDescriptionList := rows.FieldDescriptions()
	var resultList []core.Row
	for rows.Next() {
		valueList, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rowMap := make(core.Row, len(columnDescriptionList))
		for i, column := range columnDescriptionList {
			rowMap[string(column.Name)] = valueList[i]
		}
		resultList = append(resultList, rowMap)
	}
	return resultList, rows.Err()
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
	return result, nil
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
	// Capture the generated key only when the caller did not supply one.
	returning := ""
	if _, supplied := values[core.IDField]; !supplied {
		returning = core.IDField
	}
	sqlQuery, argList := compileInsert(target, values, returning)

	if returning == "" {
		_, err := driver.exec(ctx, sqlQuery, argList...)
		return nil, err
	}
	var generated any
	if err := driver.queryRow(ctx, sqlQuery, argList...).Scan(&generated); err != nil {
		return nil, err
	}
	return generated, nil
}

func (driver *Driver) InsertMany(ctx context.Context, target core.Collection, values []core.Row) error {
	for _, row := range values {
		sqlQuery, argList := compileInsert(target, row, "")
		if _, err := driver.exec(ctx, sqlQuery, argList...); err != nil {
			return err
		}
	}
	return nil
}

func (driver *Driver) Update(ctx context.Context, target core.Collection, condition *core.Condition, changes core.Changes) (int64, error) {
	sqlQuery, argList := compileUpdate(target, condition, changes)
	return driver.exec(ctx, sqlQuery, argList...)
}

func (driver *Driver) Delete(ctx context.Context, target core.Collection, condition *core.Condition) (int64, error) {
	argList := []any{}
	whereClause := buildCondition(condition, &argList)
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", qualifyTable(target.Database, target.Name), whereClause)
	return driver.exec(ctx, sqlQuery, argList...)
}

func (driver *Driver) Upsert(ctx context.Context, target core.Collection, values core.Row, conflictKeys []string) error {
	sqlQuery, argList := compileUpsert(target, values, conflictKeys)
	_, err := driver.exec(ctx, sqlQuery, argList...)
	return err
}

//endregion
