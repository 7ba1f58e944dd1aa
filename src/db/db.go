package db

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

/*
A general error to be used when no results are found. This is the error returned
by QueryOne, and can generally be used by other database helpers that fetch a single
result but find nothing.
*/
var NotFound = errors.New("not found")

// This interface should match both a pgx pool, a single connection, or a transaction.
type ConnOrTx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)

	// On a transaction this begins a savepoint, so nested helpers can
	// always open their own transaction without caring who called them.
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgtype.Map builds its lookup tables lazily and is not safe for concurrent use.
var typeMap = pgtype.NewMap()
var typeMapMutex sync.Mutex

/*
Performs a SQL query and returns a slice of all the result rows. The query is just plain SQL,
but make sure to read the package documentation for details. The type argument cannot be
inferred; it is how the results get mapped to Go values.

This function always returns pointers to the values. This is convenient for structs, but for
other types, you may wish to use QueryScalar.
*/
func Query[T any](ctx context.Context, conn ConnOrTx, query string, args ...any) ([]*T, error) {
	it, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	return it.ToSlice()
}

/*
Identical to Query, but returns only the first result row. If there are no
rows in the result set, returns NotFound.
*/
func QueryOne[T any](ctx context.Context, conn ConnOrTx, query string, args ...any) (*T, error) {
	it, err := QueryIterator[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	result, hasRow := it.Next()
	if !hasRow {
		if err := it.Err(); err != nil {
			return nil, err
		}
		return nil, NotFound
	}

	return result, nil
}

// Identical to Query, but returns values instead of pointers. Nicer for primitive types.
func QueryScalar[T any](ctx context.Context, conn ConnOrTx, query string, args ...any) ([]T, error) {
	rows, err := Query[T](ctx, conn, query, args...)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(rows))
	for _, row := range rows {
		result = append(result, *row)
	}
	return result, nil
}

/*
Identical to QueryScalar, but returns only the first result value. If there are
no rows in the result set, returns NotFound.
*/
func QueryOneScalar[T any](ctx context.Context, conn ConnOrTx, query string, args ...any) (T, error) {
	result, err := QueryOne[T](ctx, conn, query, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return *result, nil
}

/*
Identical to Query, but returns the Iterator instead of collecting the results into a
slice. The iterator must be closed after use.
*/
func QueryIterator[T any](ctx context.Context, conn ConnOrTx, query string, args ...any) (*Iterator[T], error) {
	var destExample T
	destType := reflect.TypeOf(destExample)

	compiled := compileQuery(query, destType)

	rows, err := conn.Query(ctx, compiled.query, args...)
	if err != nil {
		return nil, oops.New(err, "query failed")
	}

	it := &Iterator[T]{
		fieldPaths:       compiled.fieldPaths,
		rows:             rows,
		destType:         compiled.destType,
		destTypeIsScalar: typeIsQueryable(compiled.destType),
		closed:           make(chan struct{}, 1),
	}

	// Iterators hold a connection until closed. A cancelled request must give
	// it back even if the handler forgot, or the pool runs dry.
	go func() {
		done := ctx.Done()
		if done == nil {
			return
		}
		select {
		case <-done:
			it.Close()
		case <-it.closed:
		}
	}()

	return it, nil
}

type compiledQuery struct {
	query      string
	destType   reflect.Type
	fieldPaths []fieldPath
}

var reColumnsPlaceholder = regexp.MustCompile(`\$columns({(.*?)})?`)

func compileQuery(query string, destType reflect.Type) compiledQuery {
	columnsMatch := reColumnsPlaceholder.FindStringSubmatch(query)
	if columnsMatch == nil {
		return compiledQuery{
			query:    query,
			destType: destType,
		}
	}

	if destType.Kind() != reflect.Struct {
		panic("$columns can only be used when querying into a struct")
	}

	var prefix []string
	if columnsMatch[2] != "" {
		prefix = []string{columnsMatch[2]}
	}

	columnNames, fieldPaths := getColumnNamesAndPaths(destType, nil, prefix)

	columns := make([]string, 0, len(columnNames))
	for _, name := range columnNames {
		columns = append(columns, name.String())
	}

	return compiledQuery{
		query:      reColumnsPlaceholder.ReplaceAllString(query, strings.Join(columns, ", ")),
		destType:   destType,
		fieldPaths: fieldPaths,
	}
}

// A column name is a table path plus a column, e.g. ["topic", "id"] becomes "topic.id".
// Deeper paths like ["topic", "author", "id"] become "topic_author.id".
type columnName []string

func (n columnName) String() string {
	table := strings.Join(n[:len(n)-1], "_")
	if table == "" {
		return n[len(n)-1]
	}
	return table + "." + n[len(n)-1]
}

// A path to a particular field in query's destination type. Each index in the slice
// corresponds to a field index for use with Field on a reflect.Type or reflect.Value.
type fieldPath []int

func getColumnNamesAndPaths(destType reflect.Type, pathSoFar []int, prefix []string) ([]columnName, []fieldPath) {
	var columnNames []columnName
	var fieldPaths []fieldPath

	if destType.Kind() == reflect.Ptr {
		destType = destType.Elem()
	}

	if destType.Kind() != reflect.Struct {
		panic(fmt.Errorf("can only get column names and paths from a struct, got type '%v' (at prefix '%v')", destType.Name(), prefix))
	}

	for i := 0; i < destType.NumField(); i++ {
		field := destType.Field(i)
		columnTag := field.Tag.Get("db")
		if columnTag == "" {
			continue
		}

		path := append(append(fieldPath{}, pathSoFar...), i)
		name := append(append(columnName{}, prefix...), columnTag)

		fieldType := field.Type
		if fieldType.Kind() == reflect.Ptr {
			fieldType = fieldType.Elem()
		}

		if typeIsQueryable(fieldType) {
			columnNames = append(columnNames, name)
			fieldPaths = append(fieldPaths, path)
		} else if fieldType.Kind() == reflect.Struct {
			subNames, subPaths := getColumnNamesAndPaths(fieldType, path, name)
			columnNames = append(columnNames, subNames...)
			fieldPaths = append(fieldPaths, subPaths...)
		} else {
			panic(fmt.Errorf("field '%s' in type %s has invalid type '%s'", field.Name, destType, field.Type))
		}
	}

	return columnNames, fieldPaths
}

/*
Values of these kinds are ok to query even if they are not directly understood by pgtype.
This is common for custom types like:

	type CommentAction int
*/
var queryableKinds = []reflect.Kind{
	reflect.Int,
	reflect.Int16,
	reflect.Int32,
	reflect.Int64,
	reflect.String,
	reflect.Bool,
}

/*
Checks if we are able to handle a particular type in a database query. This applies only to
primitive types and not structs, since the database only returns individual primitive types
and it is our job to stitch them back together into structs later.
*/
func typeIsQueryable(t reflect.Type) bool {
	if t == reflect.TypeOf(uuid.UUID{}) {
		return true
	}
	typeMapMutex.Lock()
	_, recognized := typeMap.TypeForValue(reflect.New(t).Elem().Interface())
	typeMapMutex.Unlock()
	if recognized {
		return true
	}

	k := t.Kind()
	for _, qk := range queryableKinds {
		if k == qk {
			return true
		}
	}

	return false
}

type Iterator[T any] struct {
	fieldPaths       []fieldPath
	rows             pgx.Rows
	destType         reflect.Type
	destTypeIsScalar bool
	closed           chan struct{}
}

func (it *Iterator[T]) Next() (*T, bool) {
	if !it.rows.Next() {
		it.Close()
		return nil, false
	}

	result := reflect.New(it.destType)

	vals, err := it.rows.Values()
	if err != nil {
		panic(oops.New(err, "failed to read row values"))
	}

	if it.destTypeIsScalar {
		if len(vals) != 1 {
			panic(fmt.Errorf("tried to query a scalar value, but got %v values in the row", len(vals)))
		}
		if vals[0] != nil {
			setValueFromDB(result.Elem(), reflect.ValueOf(vals[0]))
		}
		return result.Interface().(*T), true
	}

	for i, val := range vals {
		if val == nil {
			continue
		}

		field, structField := followPathThroughStructs(result, it.fieldPaths[i])
		if field.Kind() == reflect.Ptr {
			field.Set(reflect.New(field.Type().Elem()))
			field = field.Elem()
		}

		valReflected := reflect.ValueOf(val)
		if valReflected.Kind() == reflect.Ptr {
			valReflected = valReflected.Elem()
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error().
						Int("index", i).
						Str("field name", structField.Name).
						Stringer("field type", structField.Type).
						Stringer("value type", valReflected.Type()).
						Msg("panic in iterator")
					panic(fmt.Errorf("panic while processing field '%s': %v", structField.Name, r))
				}
			}()
			setValueFromDB(field, valReflected)
		}()
	}

	return result.Interface().(*T), true
}

// pgx hands back int32 for int4, [16]byte for uuid, and so on. Anything that
// converts cleanly into the destination type is accepted.
func setValueFromDB(dest reflect.Value, value reflect.Value) {
	switch {
	case value.Type().AssignableTo(dest.Type()):
		dest.Set(value)
	case value.Type().ConvertibleTo(dest.Type()):
		dest.Set(value.Convert(dest.Type()))
	default:
		panic(fmt.Errorf("cannot store value of type %s in %s", value.Type(), dest.Type()))
	}
}

func (it *Iterator[T]) Err() error {
	return it.rows.Err()
}

func (it *Iterator[T]) Close() {
	it.rows.Close()
	select {
	case it.closed <- struct{}{}:
	default:
	}
}

// Pulls all the remaining values into a slice, and closes the iterator.
func (it *Iterator[T]) ToSlice() ([]*T, error) {
	defer it.Close()
	var result []*T
	for {
		row, ok := it.Next()
		if !ok {
			if err := it.rows.Err(); err != nil {
				return nil, oops.New(err, "error while iterating through db results")
			}
			break
		}
		result = append(result, row)
	}
	return result, nil
}

func followPathThroughStructs(structPtrVal reflect.Value, path fieldPath) (reflect.Value, reflect.StructField) {
	if len(path) < 1 {
		panic(oops.New(nil, "can't follow an empty path"))
	}

	if structPtrVal.Kind() != reflect.Ptr || structPtrVal.Elem().Kind() != reflect.Struct {
		panic(oops.New(nil, "structPtrVal must be a pointer to a struct; got value of type %s", structPtrVal.Type()))
	}

	var field reflect.StructField
	val := structPtrVal
	for _, i := range path {
		if val.Kind() == reflect.Ptr && val.Type().Elem().Kind() == reflect.Struct {
			if val.IsNil() {
				val.Set(reflect.New(val.Type().Elem()))
			}
			val = val.Elem()
		}
		field = val.Type().Field(i)
		val = val.Field(i)
	}
	return val, field
}
