package link_test

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/FxRayHughes/ptcmapper/internal/dialect/sqlite"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/link"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
	"github.com/FxRayHughes/ptcmapper/internal/schema"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

type realm struct {
	ID   int64
	Name string `ptc:"name"`
}

type hero struct {
	ID    int64
	Name  string `ptc:"name"`
	Realm *realm `ptc:"link"`
}

// province carries a secondary key alongside its auto-increment primary
// key, so its locator is a two-column tuple (pk, secondary key) — the
// shape TestCascadeSaveUpdatesExistingLinkTargetWithSecondaryKey exercises.
type province struct {
	ID     int64
	Region string `ptc:"region,key"`
	Name   string `ptc:"name"`
}

type governor struct {
	ID       int64
	Name     string    `ptc:"name"`
	Province *province `ptc:"link"`
}

func setup(t *testing.T) (*sql.DB, dialect.Dialect, *typeregistry.Registry, *entity.Descriptor) {
	t.Helper()
	reg := typeregistry.Default()
	heroDesc, err := entity.Describe(reflect.TypeOf(hero{}), reg)
	require.NoError(t, err)
	realmDesc, err := entity.Describe(reflect.TypeOf(realm{}), reg)
	require.NoError(t, err)

	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)
	db, err := sql.Open(d.DriverName(), d.OpenDSN(dialect.ConnParams{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(context.Background()))

	_, err = db.ExecContext(context.Background(), schema.CreateTableSQL(d, realmDesc))
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), schema.CreateTableSQL(d, heroDesc))
	require.NoError(t, err)

	return db, d, reg, heroDesc
}

func TestCascadeSaveInsertsNewLinkTarget(t *testing.T) {
	db, d, reg, heroDesc := setup(t)
	ctx := context.Background()
	eng := link.NewEngine(reg)

	h := &hero{Name: "Arthas", Realm: &realm{Name: "Lordaeron"}}
	val := reflect.ValueOf(h).Elem()

	extra, err := eng.CascadeSave(ctx, db, d, heroDesc, val)
	require.NoError(t, err)
	require.NotZero(t, h.Realm.ID)
	require.Equal(t, h.Realm.ID, extra["realm_id"])
}

func TestCascadeSaveNilLinkYieldsNilFK(t *testing.T) {
	db, d, reg, heroDesc := setup(t)
	ctx := context.Background()
	eng := link.NewEngine(reg)

	h := &hero{Name: "Uther"}
	val := reflect.ValueOf(h).Elem()

	extra, err := eng.CascadeSave(ctx, db, d, heroDesc, val)
	require.NoError(t, err)
	require.Nil(t, extra["realm_id"])
}

// TestCascadeSaveUpdatesExistingLinkTargetWithSecondaryKey exercises a link
// target whose locator is a multi-column tuple (primary key plus a
// secondary key), saving it twice: the second CascadeSave call must find
// and update the same row via its locator rather than erroring or
// inserting a duplicate.
func TestCascadeSaveUpdatesExistingLinkTargetWithSecondaryKey(t *testing.T) {
	reg := typeregistry.Default()
	govDesc, err := entity.Describe(reflect.TypeOf(governor{}), reg)
	require.NoError(t, err)
	provDesc, err := entity.Describe(reflect.TypeOf(province{}), reg)
	require.NoError(t, err)

	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)
	db, err := sql.Open(d.DriverName(), d.OpenDSN(dialect.ConnParams{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(context.Background()))

	_, err = db.ExecContext(context.Background(), schema.CreateTableSQL(d, provDesc))
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), schema.CreateTableSQL(d, govDesc))
	require.NoError(t, err)

	ctx := context.Background()
	eng := link.NewEngine(reg)

	g := &governor{Name: "Cassius", Province: &province{Region: "north", Name: "Albion"}}
	val := reflect.ValueOf(g).Elem()
	extra, err := eng.CascadeSave(ctx, db, d, govDesc, val)
	require.NoError(t, err)
	require.NotZero(t, g.Province.ID)
	require.Equal(t, g.Province.ID, extra["province_id"])

	g.Province.Name = "Albion Reborn"
	_, err = eng.CascadeSave(ctx, db, d, govDesc, val)
	require.NoError(t, err, "re-saving an already-assigned link target with a secondary key must not mis-bind its existence check")

	var name string
	err = db.QueryRowContext(ctx, "SELECT "+d.Quote("name")+" FROM "+d.Quote(provDesc.TableName)+" WHERE "+d.Quote("id")+" = ?", g.Province.ID).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "Albion Reborn", name)
}

func TestPlanSelectSQLAndHydrate(t *testing.T) {
	db, d, reg, heroDesc := setup(t)
	ctx := context.Background()
	eng := link.NewEngine(reg)

	h := &hero{Name: "Jaina", Realm: &realm{Name: "Theramore"}}
	val := reflect.ValueOf(h).Elem()
	extra, err := eng.CascadeSave(ctx, db, d, heroDesc, val)
	require.NoError(t, err)
	res, err := rowops.Insert(ctx, db, d, reg, heroDesc, val, extra)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	plan, err := link.NewPlan(reg, heroDesc)
	require.NoError(t, err)
	require.True(t, plan.HasLinks())

	cols, from := plan.SelectSQL(d, heroDesc.TableName)
	require.NotEmpty(t, cols)
	require.Contains(t, from, "LEFT JOIN")

	stmt := "SELECT " + cols + " FROM " + from + " WHERE " + d.Quote(heroDesc.TableName) + "." + d.Quote("id") + " = ?"
	rows, err := db.QueryContext(ctx, stmt, id)
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	rowCols, err := rows.Columns()
	require.NoError(t, err)
	dest := rowops.ScanDest(len(rowCols))
	require.NoError(t, rows.Scan(dest...))
	raw := rowops.DerefDest(dest)

	var got hero
	require.NoError(t, plan.Hydrate(reg, rowCols, raw, reflect.ValueOf(&got).Elem()))
	require.Equal(t, "Jaina", got.Name)
	require.NotNil(t, got.Realm)
	require.Equal(t, "Theramore", got.Realm.Name)
}

func TestPlanHydrateLeavesNilLinkAbsent(t *testing.T) {
	db, d, reg, heroDesc := setup(t)
	ctx := context.Background()

	h := &hero{Name: "Sylvanas"}
	val := reflect.ValueOf(h).Elem()
	res, err := rowops.Insert(ctx, db, d, reg, heroDesc, val, map[string]any{"realm_id": nil})
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	plan, err := link.NewPlan(reg, heroDesc)
	require.NoError(t, err)
	cols, from := plan.SelectSQL(d, heroDesc.TableName)
	stmt := "SELECT " + cols + " FROM " + from + " WHERE " + d.Quote(heroDesc.TableName) + "." + d.Quote("id") + " = ?"
	rows, err := db.QueryContext(ctx, stmt, id)
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	rowCols, err := rows.Columns()
	require.NoError(t, err)
	dest := rowops.ScanDest(len(rowCols))
	require.NoError(t, rows.Scan(dest...))
	raw := rowops.DerefDest(dest)

	var got hero
	require.NoError(t, plan.Hydrate(reg, rowCols, raw, reflect.ValueOf(&got).Elem()))
	require.Nil(t, got.Realm)
}
