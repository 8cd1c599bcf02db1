package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalOrZero coerces any JSON-ish value to a decimal, falling back to
// zero for absent or non-finite input. Every parse site in the aggregator
// and config layers goes through this one helper so the coercion rules
// stay uniform.
func DecimalOrZero(v interface{}) decimal.Decimal {
	switch vv := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return vv
	case float64:
		if math.IsNaN(vv) || math.IsInf(vv, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(vv)
	case float32:
		return DecimalOrZero(float64(vv))
	case int:
		return decimal.NewFromInt(int64(vv))
	case int64:
		return decimal.NewFromInt(vv)
	case json.Number:
		d, err := decimal.NewFromString(vv.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(vv, "$"))
		if s == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return decimal.Zero
}

// IntOrZero coerces any JSON-ish value to an int, zero on failure.
func IntOrZero(v interface{}) int {
	switch vv := v.(type) {
	case int:
		return vv
	case int64:
		return int(vv)
	case float64:
		if math.IsNaN(vv) || math.IsInf(vv, 0) {
			return 0
		}
		return int(vv)
	case json.Number:
		n, err := vv.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(vv))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// BoolValue reports the boolean value of v and whether v carried one at all.
func BoolValue(v interface{}) (value, ok bool) {
	switch vv := v.(type) {
	case bool:
		return vv, true
	case string:
		switch strings.ToLower(strings.TrimSpace(vv)) {
		case "true", "t", "yes", "1":
			return true, true
		case "false", "f", "no", "0":
			return false, true
		}
	case float64:
		return vv != 0, true
	}
	return false, false
}

// StringOrEmpty coerces v to a string, empty on anything non-stringish.
func StringOrEmpty(v interface{}) string {
	switch vv := v.(type) {
	case string:
		return vv
	case json.Number:
		return vv.String()
	}
	return ""
}
