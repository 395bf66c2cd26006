package typeregistry

import "reflect"

// registerBuiltins installs the primitive codecs from spec.md §6's
// "Built-in column-type defaults" table. Length only matters for the
// string codec; every other scalar ignores it.
func registerBuiltins(r *Registry) {
	r.RegisterScalar(ScalarCodec{
		GoType:      reflect.TypeOf(""),
		MySQLType:   "VARCHAR",
		SQLiteType:  "TEXT",
		PostgreType: "VARCHAR",
		Length:      64,
		Serialize:   func(v reflect.Value) (any, error) { return v.String(), nil },
		Deserialize: func(scalar any) (reflect.Value, error) { return reflect.ValueOf(toString(scalar)), nil },
	})

	r.RegisterScalar(ScalarCodec{
		GoType:      reflect.TypeOf(int(0)),
		MySQLType:   "INT",
		SQLiteType:  "INTEGER",
		PostgreType: "INTEGER",
		Serialize:   func(v reflect.Value) (any, error) { return v.Int(), nil },
		Deserialize: func(scalar any) (reflect.Value, error) {
			n, err := toInt64(scalar)
			return reflect.ValueOf(int(n)), err
		},
	})

	r.RegisterScalar(ScalarCodec{
		GoType:      reflect.TypeOf(int64(0)),
		MySQLType:   "BIGINT",
		SQLiteType:  "INTEGER",
		PostgreType: "BIGINT",
		Serialize:   func(v reflect.Value) (any, error) { return v.Int(), nil },
		Deserialize: func(scalar any) (reflect.Value, error) {
			n, err := toInt64(scalar)
			return reflect.ValueOf(n), err
		},
	})

	r.RegisterScalar(ScalarCodec{
		GoType:      reflect.TypeOf(float64(0)),
		MySQLType:   "DOUBLE",
		SQLiteType:  "REAL",
		PostgreType: "DOUBLE PRECISION",
		Serialize:   func(v reflect.Value) (any, error) { return v.Float(), nil },
		Deserialize: func(scalar any) (reflect.Value, error) {
			f, err := toFloat64(scalar)
			return reflect.ValueOf(f), err
		},
	})

	r.RegisterScalar(ScalarCodec{
		GoType:      reflect.TypeOf(false),
		MySQLType:   "TINYINT(1)",
		SQLiteType:  "INTEGER",
		PostgreType: "BOOLEAN",
		Serialize: func(v reflect.Value) (any, error) {
			if v.Bool() {
				return int64(1), nil
			}
			return int64(0), nil
		},
		Deserialize: func(scalar any) (reflect.Value, error) {
			n, err := toInt64(scalar)
			if err != nil {
				if b, ok := scalar.(bool); ok {
					return reflect.ValueOf(b), nil
				}
				return reflect.Value{}, err
			}
			return reflect.ValueOf(n != 0), nil
		},
	})
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case []byte:
		return parseInt64(string(t))
	case string:
		return parseInt64(t)
	case nil:
		return 0, nil
	default:
		return 0, errUnsupportedScalar("int64", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case []byte:
		return parseFloat64(string(t))
	case string:
		return parseFloat64(t)
	case nil:
		return 0, nil
	default:
		return 0, errUnsupportedScalar("float64", v)
	}
}
