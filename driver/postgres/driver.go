// Package postgres provides the PostgreSQL document store client for the patchwork ORM.
// It applies update operation sets as a single UPDATE statement.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leandroluk/patchwork/core"
	"go.uber.org/zap"
)

//region PostgresDriver

// Pool is the subset of *pgxpool.Pool the driver needs.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type PostgresDriver struct {
	pool   Pool
	logger *zap.Logger
}

var _ core.Driver = (*PostgresDriver)(nil)

// Option customizes a PostgresDriver.
type Option func(*PostgresDriver)

// WithLogger sets the logger used for issued statements.
func WithLogger(logger *zap.Logger) Option {
	return func(driver *PostgresDriver) { driver.logger = logger }
}

func NewPostgresDriver(ctx context.Context, connString string, options ...Option) (*PostgresDriver, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return NewPostgresDriverFromPool(pool, options...), nil
}

// NewPostgresDriverFromPool wraps an existing pool, such as a pgxmock pool in tests.
func NewPostgresDriverFromPool(pool Pool, options ...Option) *PostgresDriver {
	driver := &PostgresDriver{pool: pool, logger: zap.NewNop()}
	for _, option := range options {
		option(driver)
	}
	return driver
}

func (driver *PostgresDriver) formatTable(schema *core.SchemaCore) (string, error) {
	if schema.Collection == "" {
		return "", &core.MissingRoutingMetadataError{Type: schema.Type}
	}
	if schema.Database != "" {
		return fmt.Sprintf("%q.%q", schema.Database, schema.Collection), nil
	}
	return fmt.Sprintf("%q", schema.Collection), nil
}

// conn returns the transaction in ctx, or the pool.
func (driver *PostgresDriver) conn(ctx context.Context) executor {
	if tx := core.TransactionFrom(ctx); tx != nil {
		if pgTx, ok := tx.(*postgresTransaction); ok {
			return pgTx.transaction
		}
	}
	return driver.pool
}

func (driver *PostgresDriver) exec(ctx context.Context, sqlQuery string, args ...any) (int64, error) {
	driver.logger.Debug("postgres exec", zap.String("sql", sqlQuery), zap.Int("args", len(args)))
	tag, err := driver.conn(ctx).Exec(ctx, sqlQuery, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (driver *PostgresDriver) Connect(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *PostgresDriver) Ping(ctx context.Context) error {
	return driver.pool.Ping(ctx)
}

func (driver *PostgresDriver) Close(ctx context.Context) error {
	driver.pool.Close()
	return nil
}

func (driver *PostgresDriver) Transaction(ctx context.Context) (core.Transaction, error) {
	tx, err := driver.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return &postgresTransaction{transaction: tx}, nil
}

func (driver *PostgresDriver) Insert(ctx context.Context, schema *core.SchemaCore, documents ...any) error {
	if len(documents) == 0 {
		return nil
	}
	table, err := driver.formatTable(schema)
	if err != nil {
		return err
	}

	columnNameList := make([]string, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		columnNameList = append(columnNameList, fmt.Sprintf("%q", field.DatabaseColumnName))
	}
	columnList := "(" + strings.Join(columnNameList, ", ") + ")"

	for _, doc := range documents {
		valueList, placeholderList, err := core.StructValues(schema, doc)
		if err != nil {
			return err
		}
		for index, value := range valueList {
			arg, cast, err := toArg(value)
			if err != nil {
				return err
			}
			valueList[index] = arg
			placeholderList[index] += cast
		}
		sqlQuery := fmt.Sprintf("INSERT INTO %s %s VALUES (%s)",
			table, columnList, strings.Join(placeholderList, ", "))

		if _, err := driver.exec(ctx, sqlQuery, valueList...); err != nil {
			return err
		}
	}
	return nil
}

// Update issues one UPDATE for the whole operation set. Without multi, the
// statement is narrowed to a single matching row through its ctid.
func (driver *PostgresDriver) Update(ctx context.Context, schema *core.SchemaCore, condition *core.Condition, operations core.UpdateOperationSet, multi bool) (int64, error) {
	if len(operations) == 0 {
		return 0, nil
	}
	table, err := driver.formatTable(schema)
	if err != nil {
		return 0, err
	}

	argList := []any{}
	setClause, err := buildUpdate(operations, &argList)
	if err != nil {
		return 0, err
	}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return 0, err
	}
	if !multi {
		whereClause = fmt.Sprintf("ctid IN (SELECT ctid FROM %s WHERE %s LIMIT 1)", table, whereClause)
	}

	sqlQuery := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, setClause, whereClause)
	return driver.exec(ctx, sqlQuery, argList...)
}

func (driver *PostgresDriver) Delete(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	table, err := driver.formatTable(schema)
	if err != nil {
		return 0, err
	}
	argList := []any{}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return 0, err
	}
	sqlQuery := fmt.Sprintf("DELETE FROM %s WHERE %s", table, whereClause)
	return driver.exec(ctx, sqlQuery, argList...)
}

func (driver *PostgresDriver) Count(ctx context.Context, schema *core.SchemaCore, condition *core.Condition) (int64, error) {
	table, err := driver.formatTable(schema)
	if err != nil {
		return 0, err
	}
	argList := []any{}
	whereClause, err := buildCondition(condition, &argList)
	if err != nil {
		return 0, err
	}
	sqlQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, whereClause)

	var count int64
	if err := driver.conn(ctx).QueryRow(ctx, sqlQuery, argList...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

//endregion
