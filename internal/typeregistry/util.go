package typeregistry

import (
	"fmt"
	"strconv"
)

func parseInt64(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseFloat64(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func errUnsupportedScalar(want string, got any) error {
	return fmt.Errorf("typeregistry: cannot convert %T to %s", got, want)
}
