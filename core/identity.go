// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines identifier normalization, the pure function that reduces
// any backend-native identifier representation to a canonical matching key.
package core

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NormalizeKey reduces a backend identifier to its canonical string form.
//
// Relation matching builds dictionaries keyed by this value, so two
// identifiers the backend considers equal must normalize identically:
// a primitive.ObjectID, its hex string, and a {"_id": ...} wrapper all
// produce the same key. Numeric identifiers normalize to their decimal
// form regardless of the integer width the scan produced.
//
// The function is total over the canonical attribute value space: it never
// panics and maps nil to the empty string (which matches nothing, since
// owners with a nil key are skipped by relation constraints).
func NormalizeKey(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case []byte:
		return hex.EncodeToString(v)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return normalizeFloatKey(float64(v))
	case float64:
		return normalizeFloatKey(v)
	case map[string]any:
		// Wrapped identifier: {"_id": ...} or {"id": ...}.
		if inner, ok := v["_id"]; ok {
			return NormalizeKey(inner)
		}
		if inner, ok := v[IDField]; ok {
			return NormalizeKey(inner)
		}
		return fmt.Sprintf("%v", v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// normalizeFloatKey renders integral floats without a fractional part so a
// float64(7) scanned from one backend matches an int64(7) from another.
func normalizeFloatKey(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
