package schema_test

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/FxRayHughes/ptcmapper/internal/dialect/sqlite"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/schema"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// widget has no @id field and no "ID" field: entity.Describe injects a
// synthetic auto-increment "id" primary key (see reflect.go's build()), one
// of the two ways a Column gets IsAutoKey set (the other is promoting a
// field named "ID").
type widget struct {
	Name string `ptc:"name"`
}

func TestCreateTableSQLIncludesPrimaryKey(t *testing.T) {
	desc, err := entity.Describe(reflect.TypeOf(widget{}), typeregistry.Default())
	require.NoError(t, err)

	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)

	stmt := schema.CreateTableSQL(d, desc)
	require.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS")
	require.Contains(t, stmt, "PRIMARY KEY")
}

func TestEnsureCreatesTableAndMetaRow(t *testing.T) {
	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)

	db, err := openMem(t, d)
	require.NoError(t, err)

	desc, err := entity.Describe(reflect.TypeOf(widget{}), typeregistry.Default())
	require.NoError(t, err)
	desc.Migrations = []entity.Migration{
		{Version: 1, Statements: []string{"ALTER TABLE " + d.Quote(desc.TableName) + " ADD COLUMN " + d.Quote("note") + " TEXT"}},
	}

	ens := schema.NewEnsurer(d, db, typeregistry.Default())
	ctx := context.Background()
	require.NoError(t, ens.Ensure(ctx, desc))

	_, err = db.ExecContext(ctx, "INSERT INTO "+d.Quote(desc.TableName)+" ("+d.Quote("name")+", "+d.Quote("note")+") VALUES (?, ?)", "a", "n")
	require.NoError(t, err)

	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM _ptc_meta WHERE table_name = ?", desc.TableName).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	require.NoError(t, ens.Ensure(ctx, desc))
}

// TestEnsureRetriesAfterAFailedAttempt guards against a regression where a
// table that failed its first CREATE TABLE attempt (a transient error) was
// still marked "ensured" — every later Ensure call for that table then
// returned the same stale error forever, with no way to recover short of
// restarting the process.
func TestEnsureRetriesAfterAFailedAttempt(t *testing.T) {
	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)

	db, err := openMem(t, d)
	require.NoError(t, err)

	desc, err := entity.Describe(reflect.TypeOf(widget{}), typeregistry.Default())
	require.NoError(t, err)

	ens := schema.NewEnsurer(d, db, typeregistry.Default())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err = ens.Ensure(cancelled, desc)
	require.Error(t, err, "a cancelled context must fail the CREATE TABLE attempt")

	require.NoError(t, ens.Ensure(context.Background(), desc), "a later call must retry rather than replay the earlier failure")

	_, err = db.ExecContext(context.Background(), "INSERT INTO "+d.Quote(desc.TableName)+" ("+d.Quote("name")+") VALUES (?)", "a")
	require.NoError(t, err)
}

// TestEnsureConcurrentCallersAllSeeCreatedTable guards against a regression
// where a table was claimed (and treated as ensured) before CREATE TABLE had
// actually run: a second, concurrent Ensure call on the same table must
// block until the table exists, not return early and let its caller race a
// query against a table that isn't there yet.
func TestEnsureConcurrentCallersAllSeeCreatedTable(t *testing.T) {
	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)

	db, err := openMem(t, d)
	require.NoError(t, err)

	desc, err := entity.Describe(reflect.TypeOf(widget{}), typeregistry.Default())
	require.NoError(t, err)

	ens := schema.NewEnsurer(d, db, typeregistry.Default())
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ens.Ensure(ctx, desc)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO "+d.Quote(desc.TableName)+" ("+d.Quote("name")+") VALUES (?)", "a")
	require.NoError(t, err, "table must exist by the time every concurrent Ensure call returns")
}
