// Package mapper implements the DataMapper Core (spec.md §4.7):
// Mapper[T] is the per-record-type handle that wires together entity
// descriptors, the SQL dialect, the query builder, the connection pool,
// the schema/migration engine, the link engine, the collection engine, and
// an optional two-layer cache. Go generics stand in for the teacher's
// per-type delegated-property handles; every exported method maps to one
// row of spec.md §4.7's operation table.
package mapper

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync"

	"github.com/FxRayHughes/ptcmapper/internal/cache"
	"github.com/FxRayHughes/ptcmapper/internal/collection"
	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/link"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/query"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
	"github.com/FxRayHughes/ptcmapper/internal/schema"
	"github.com/FxRayHughes/ptcmapper/internal/telemetry"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// Mapper is the per-record-type handle spec.md §4.7 describes.
type Mapper[T any] struct {
	p   *pool.Pool
	d   dialect.Dialect
	dsn string
	reg *typeregistry.Registry

	desc     *entity.Descriptor
	linkPlan *link.Plan
	linkEng  *link.Engine
	coll     *collection.Store

	ensureOnce sync.Once
	ensurer    *schema.Ensurer

	beanCache  *cache.Cache
	queryCache *cache.Cache

	log telemetry.Logger
}

// Option configures a Mapper at construction time.
type Option func(*options)

type options struct {
	registry   *typeregistry.Registry
	beanCache  *cache.Config
	queryCache *cache.Config
	logger     telemetry.Logger
}

// WithLogger overrides the default discard logger used for schema-creation
// and cache-invalidation tracing.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry overrides the default, process-wide type registry.
func WithRegistry(reg *typeregistry.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithBeanCache enables the primary-key-keyed bean cache (spec.md §4.10).
func WithBeanCache(cfg cache.Config) Option {
	return func(o *options) { o.beanCache = &cfg }
}

// WithQueryCache enables the fingerprint-keyed query cache (spec.md §4.10).
func WithQueryCache(cfg cache.Config) Option {
	return func(o *options) { o.queryCache = &cfg }
}

// New constructs a Mapper for T, resolving its entity.Descriptor eagerly.
// Schema creation/migration is deferred to first use (spec.md §4.5).
func New[T any](p *pool.Pool, d dialect.Dialect, dsn string, opts ...Option) (*Mapper[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	reg := o.registry
	if reg == nil {
		reg = typeregistry.Default()
	}

	desc, err := entity.Describe(reflect.TypeFor[T](), reg)
	if err != nil {
		return nil, err
	}
	plan, err := link.NewPlan(reg, desc)
	if err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		log = telemetry.Discard()
	}

	m := &Mapper[T]{
		p: p, d: d, dsn: dsn, reg: reg,
		desc: desc, linkPlan: plan,
		linkEng: link.NewEngine(reg),
		coll:    collection.New(reg),
		log:     log,
	}
	if o.beanCache != nil {
		m.beanCache = cache.New(*o.beanCache)
	}
	if o.queryCache != nil {
		m.queryCache = cache.New(*o.queryCache)
	}
	return m, nil
}

// ensure opens (or reuses) the pool's *sql.DB and runs C5's idempotent
// create/migrate step for T's table, once per Mapper.
func (m *Mapper[T]) ensure(ctx context.Context) (*sql.DB, error) {
	db, err := m.p.Open(ctx, m.d, m.dsn)
	if err != nil {
		return nil, err
	}
	m.ensureOnce.Do(func() {
		m.ensurer = schema.NewEnsurer(m.d, db, m.reg)
		m.log.InfoContext(ctx, "ensuring schema", "table", m.desc.TableName)
	})
	if err := m.ensurer.Ensure(ctx, m.desc); err != nil {
		return nil, err
	}
	return db, nil
}

func (m *Mapper[T]) pkOf(val reflect.Value) (any, error) {
	return rowops.SerializeColumn(m.reg, m.desc.PrimaryKey, val)
}

func beanKey(pk any) string { return fmt.Sprint(pk) }

// invalidateSingle applies spec.md §4.10's single-row update/delete rule:
// evict that one bean, clear the whole query cache.
func (m *Mapper[T]) invalidateSingle(pk any) {
	if m.beanCache != nil {
		m.beanCache.Evict(beanKey(pk))
	}
	if m.queryCache != nil {
		m.queryCache.Clear()
	}
	m.log.DebugContext(context.Background(), "cache invalidated (single)", "table", m.desc.TableName, "pk", pk)
}

// invalidateBulk clears both caches wholesale: spec.md §4.10's batch rule,
// also applied to single inserts, where it clears the bean cache as well
// as the query cache that the insert rule alone requires.
func (m *Mapper[T]) invalidateBulk() {
	if m.beanCache != nil {
		m.beanCache.Clear()
	}
	if m.queryCache != nil {
		m.queryCache.Clear()
	}
	m.log.DebugContext(context.Background(), "cache invalidated (bulk)", "table", m.desc.TableName)
}

// queryCached fronts fetch with the query cache, when one is configured,
// keyed by a fingerprint of stmt/args/tag (spec.md §4.10). tag disambiguates
// operations that can render the same SQL shape for different record types
// sharing a cache (e.g. plain FindAll vs a Sort call over the same table).
func (m *Mapper[T]) queryCached(tag, stmt string, args []any, fetch func() ([]*T, error)) ([]*T, error) {
	if m.queryCache == nil {
		return fetch()
	}
	key := cache.Fingerprint(stmt, args, tag+":"+m.desc.TableName)
	v, err := m.queryCache.GetOrFill(key, func() (any, error) {
		return fetch()
	})
	if err != nil {
		return nil, err
	}
	return v.([]*T), nil
}

// selectSQL renders the full read statement (link-joined projection, the
// given predicate, ordering, and an optional LIMIT/OFFSET) shared by
// FindByID, FindAll, Sort*, and FindPage/SortPage.
func (m *Mapper[T]) selectSQL(where query.Predicate, orderBy []query.OrderTerm, limit, offset int, hasLimit bool) (string, []any) {
	cols, from := m.linkPlan.SelectSQL(m.d, m.desc.TableName)
	var args []any
	stmt := "SELECT " + cols + " FROM " + from
	if where != nil {
		stmt += " WHERE " + where.Build(m.d, &args)
	}
	if len(orderBy) > 0 {
		stmt += " ORDER BY "
		for i, t := range orderBy {
			if i > 0 {
				stmt += ", "
			}
			dir := "ASC"
			if t.Desc {
				dir = "DESC"
			}
			stmt += m.d.Quote(m.desc.TableName) + "." + m.d.Quote(t.Column) + " " + dir
		}
	}
	if hasLimit {
		stmt += " " + m.d.LimitOffset(limit, offset)
	}
	return stmt, args
}

// materialize scans every row of rows into *T, hydrating link fields
// inline and collection fields in one batched round trip per child table.
func (m *Mapper[T]) materialize(ctx context.Context, conn pool.Executor, rows *sql.Rows) ([]*T, error) {
	defer rows.Close()

	rowCols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []*T
	var pks []any
	for rows.Next() {
		dest := rowops.ScanDest(len(rowCols))
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		raw := rowops.DerefDest(dest)

		ptr := reflect.New(m.desc.Type)
		if err := m.linkPlan.Hydrate(m.reg, rowCols, raw, ptr.Elem()); err != nil {
			return nil, err
		}
		pk, err := m.pkOf(ptr.Elem())
		if err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface().(*T))
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := m.hydrateCollections(ctx, conn, results, pks); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Mapper[T]) hydrateCollections(ctx context.Context, conn pool.Executor, results []*T, pks []any) error {
	for _, cf := range m.desc.CollectionFields {
		if cf.Flattened {
			continue
		}
		grouped, err := m.coll.FetchForParents(ctx, conn, m.d, m.desc, cf, pks)
		if err != nil {
			return err
		}
		for i, r := range results {
			fv := reflect.ValueOf(r).Elem().FieldByIndex(cf.FieldIndex)
			if err := m.coll.ApplyToField(cf, grouped[beanKey(pks[i])], fv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Mapper[T]) replaceCollections(ctx context.Context, conn pool.Executor, val reflect.Value, pk any) error {
	for _, cf := range m.desc.CollectionFields {
		if cf.Flattened {
			continue
		}
		fv := val.FieldByIndex(cf.FieldIndex)
		if err := m.coll.ReplaceAll(ctx, conn, m.d, m.desc, cf, pk, fv); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mapper[T]) deleteCollections(ctx context.Context, conn pool.Executor, pk any) error {
	for _, cf := range m.desc.CollectionFields {
		if cf.Flattened {
			continue
		}
		if err := m.coll.DeleteByParent(ctx, conn, m.d, m.desc, cf, pk); err != nil {
			return err
		}
	}
	return nil
}

// Insert persists all columns of e, cascade-saving link fields first and
// writing collection-field child tables afterward (spec.md §4.7 "insert").
func (m *Mapper[T]) Insert(ctx context.Context, e *T) error {
	_, err := m.insert(ctx, e)
	return err
}

// InsertAndGetKey is Insert, additionally returning the generated primary
// key as an int64 (spec.md §4.7 "insertAndGetKey").
func (m *Mapper[T]) InsertAndGetKey(ctx context.Context, e *T) (int64, error) {
	return m.insert(ctx, e)
}

func (m *Mapper[T]) insert(ctx context.Context, e *T) (int64, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return 0, err
	}
	conn := pool.Conn(ctx, db)
	val := reflect.ValueOf(e).Elem()

	extra, err := m.linkEng.CascadeSave(ctx, conn, m.d, m.desc, val)
	if err != nil {
		return 0, err
	}

	res, err := rowops.Insert(ctx, conn, m.d, m.reg, m.desc, val, extra)
	if err != nil {
		return 0, err
	}

	var keyID int64
	if m.desc.PrimaryKey.IsAutoKey {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		if err := rowops.DeserializeColumn(m.reg, m.desc.PrimaryKey, val, id); err != nil {
			return 0, err
		}
		keyID = id
	} else {
		pk, err := m.pkOf(val)
		if err != nil {
			return 0, err
		}
		keyID, _ = rowops.ToInt64Scalar(pk)
	}

	pk, err := m.pkOf(val)
	if err != nil {
		return 0, err
	}
	if err := m.replaceCollections(ctx, conn, val, pk); err != nil {
		return 0, err
	}

	m.invalidateBulk() // spec.md §4.10: insert leaves the bean cache untouched, clears the query cache; clearing both is a safe superset since the row had no prior bean entry
	return keyID, nil
}

// FindByID returns the row whose primary key equals pk, with link fields
// auto-joined and collection fields rehydrated. The bool is false (not an
// error) when no such row exists (spec.md §4.7 "findById").
func (m *Mapper[T]) FindByID(ctx context.Context, pk any) (*T, bool, error) {
	if m.beanCache != nil {
		if v, ok := m.beanCache.Get(beanKey(pk)); ok {
			return v.(*T), true, nil
		}
	}

	db, err := m.ensure(ctx)
	if err != nil {
		return nil, false, err
	}
	conn := pool.Conn(ctx, db)

	where := query.Eq(m.desc.PrimaryKey.ColumnName, query.Val(pk))
	stmt, args := m.selectSQL(where, nil, 0, 0, false)
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, false, err
	}

	results, err := m.materialize(ctx, conn, rows)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		return nil, false, nil
	}

	if m.beanCache != nil {
		m.beanCache.Set(beanKey(pk), results[0])
	}
	return results[0], true, nil
}

// FindAll returns every row matching pred (or every row, if pred is nil).
func (m *Mapper[T]) FindAll(ctx context.Context, pred query.Predicate) ([]*T, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn := pool.Conn(ctx, db)

	stmt, args := m.selectSQL(pred, nil, 0, 0, false)
	return m.queryCached("findAll", stmt, args, func() ([]*T, error) {
		rows, err := conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return m.materialize(ctx, conn, rows)
	})
}

// Update locates e by its primary (and secondary, if any) key, SETs only
// mutable columns, cascade-updates link fields, and wholesale-replaces
// collection-field child tables (spec.md §4.7 "update").
func (m *Mapper[T]) Update(ctx context.Context, e *T) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)
	val := reflect.ValueOf(e).Elem()

	extra, err := m.linkEng.CascadeSave(ctx, conn, m.d, m.desc, val)
	if err != nil {
		return err
	}
	if _, err := rowops.Update(ctx, conn, m.d, m.reg, m.desc, val, extra); err != nil {
		return err
	}

	pk, err := m.pkOf(val)
	if err != nil {
		return err
	}
	if err := m.replaceCollections(ctx, conn, val, pk); err != nil {
		return err
	}

	m.invalidateSingle(pk)
	return nil
}

// Exists reports whether a row with primary key pk exists.
func (m *Mapper[T]) Exists(ctx context.Context, pk any) (bool, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return false, err
	}
	conn := pool.Conn(ctx, db)
	where := rowops.PKWhereSQL(m.d, m.desc, 1)
	return rowops.Exists(ctx, conn, m.d, m.desc, where, []any{pk})
}

// DeleteByID deletes the row with primary key pk, cascading to its
// collection-field child tables first (spec.md §4.7 "deleteById").
func (m *Mapper[T]) DeleteByID(ctx context.Context, pk any) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	if err := m.deleteCollections(ctx, conn, pk); err != nil {
		return err
	}
	where := rowops.PKWhereSQL(m.d, m.desc, 1)
	if _, err := rowops.DeleteWhere(ctx, conn, m.d, m.desc, where, []any{pk}); err != nil {
		return err
	}

	m.invalidateSingle(pk)
	return nil
}

// DeleteWhere deletes every row matching pred, cascading to each matched
// row's collection child tables (spec.md §4.7 "deleteWhere").
func (m *Mapper[T]) DeleteWhere(ctx context.Context, pred query.Predicate) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	pkCol := m.desc.PrimaryKey.ColumnName
	var args []any
	selectPKs := fmt.Sprintf("SELECT %s FROM %s", m.d.Quote(pkCol), m.d.Quote(m.desc.TableName))
	if pred != nil {
		selectPKs += " WHERE " + pred.Build(m.d, &args)
	}
	rows, err := conn.QueryContext(ctx, selectPKs, args...)
	if err != nil {
		return err
	}
	var pks []any
	for rows.Next() {
		var pk any
		if err := rows.Scan(&pk); err != nil {
			rows.Close()
			return err
		}
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, pk := range pks {
		if err := m.deleteCollections(ctx, conn, pk); err != nil {
			return err
		}
	}

	whereSQL := "1 = 1"
	var delArgs []any
	if pred != nil {
		whereSQL = pred.Build(m.d, &delArgs)
	}
	if _, err := rowops.DeleteWhere(ctx, conn, m.d, m.desc, whereSQL, delArgs); err != nil {
		return err
	}

	m.invalidateBulk()
	return nil
}
