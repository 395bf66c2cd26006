package entity

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

type playerHome struct {
	Username   string `ptc:"id"`
	ServerName string `ptc:"key"`
	World      string
	X          float64
	Y          float64
	Z          float64
	Active     bool
}

type noIDEntity struct {
	Name string
}

type ignoreEntity struct {
	ID     string `ptc:"id"`
	Cached int    `ptc:"-"`
}

type gameMode int

const (
	modeSurvival gameMode = iota
	modeCreative
)

func (m gameMode) Index() int64 { return int64(m) }

type session struct {
	ID   string `ptc:"id"`
	Mode gameMode
}

func TestDescribeExplicitIDAndKey(t *testing.T) {
	d, err := Describe(reflect.TypeOf(playerHome{}), typeregistry.Default())
	require.NoError(t, err)
	require.Equal(t, "player_home", d.TableName)
	require.NotNil(t, d.PrimaryKey)
	require.Equal(t, "username", d.PrimaryKey.ColumnName)
	require.False(t, d.PrimaryKey.IsMutable)
	require.Len(t, d.SecondaryKeys, 1)
	require.Equal(t, "server_name", d.SecondaryKeys[0].ColumnName)

	mutable := d.MutableColumns()
	names := make([]string, len(mutable))
	for i, c := range mutable {
		names[i] = c.ColumnName
	}
	require.Contains(t, names, "world")
	require.Contains(t, names, "x")
	require.NotContains(t, names, "username")
	require.NotContains(t, names, "server_name")
}

func TestDescribeInjectsSyntheticPrimaryKey(t *testing.T) {
	d, err := Describe(reflect.TypeOf(noIDEntity{}), typeregistry.Default())
	require.NoError(t, err)
	require.NotNil(t, d.PrimaryKey)
	require.True(t, d.PrimaryKey.IsAutoKey)
	require.Equal(t, "id", d.PrimaryKey.ColumnName)
}

func TestDescribeIgnoredField(t *testing.T) {
	d, err := Describe(reflect.TypeOf(ignoreEntity{}), typeregistry.Default())
	require.NoError(t, err)
	require.Len(t, d.DefaultedFields, 1)
	require.Equal(t, "Cached", d.DefaultedFields[0].FieldName)
	require.Nil(t, d.FindColumn("Cached"))
}

// TestDescribeCachesPerRegistryNotJustPerType guards against a regression
// where the descriptor cache was keyed only on reflect.Type: buildColumn
// consults the registry to resolve an enum field, so describing the same
// struct against two distinct registries (one with the enum registered, one
// without) must not let whichever registry ran first poison the other's
// result via a shared cache entry.
func TestDescribeCachesPerRegistryNotJustPerType(t *testing.T) {
	stringCodec := typeregistry.ScalarCodec{
		GoType:      reflect.TypeOf(""),
		MySQLType:   "VARCHAR",
		SQLiteType:  "TEXT",
		PostgreType: "VARCHAR",
		Length:      64,
		Serialize:   func(v reflect.Value) (any, error) { return v.String(), nil },
		Deserialize: func(scalar any) (reflect.Value, error) { return reflect.ValueOf(scalar), nil },
	}

	withEnum := typeregistry.New()
	withEnum.RegisterScalar(stringCodec)
	withEnum.RegisterEnum(reflect.TypeOf(modeSurvival), []typeregistry.IndexedEnum{modeSurvival, modeCreative})

	withoutEnum := typeregistry.New()
	withoutEnum.RegisterScalar(stringCodec)

	d1, err := Describe(reflect.TypeOf(session{}), withEnum)
	require.NoError(t, err)
	col1 := d1.FindColumn("Mode")
	require.NotNil(t, col1)
	require.True(t, col1.IsEnum)

	_, err = Describe(reflect.TypeOf(session{}), withoutEnum)
	require.Error(t, err, "Mode has no scalar codec and no enum registration in this registry")

	// Re-describing against withEnum must still return the original,
	// correctly-enum-typed descriptor rather than whatever the withoutEnum
	// call may have cached under the same type.
	d2, err := Describe(reflect.TypeOf(session{}), withEnum)
	require.NoError(t, err)
	col2 := d2.FindColumn("Mode")
	require.NotNil(t, col2)
	require.True(t, col2.IsEnum)
}
