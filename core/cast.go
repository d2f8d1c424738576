// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines attribute casting: the symmetric read/write value
// transforms applied by Entity.GetAttribute and Entity.SetAttribute.
package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Supported cast type names, as used in Definition.Casts.
//
//	int, float, bool, string   - scalar coercions
//	decimal:<n>                - float rounded to n places on write
//	json, array                - serialized to a JSON string on write,
//	                             parsed back on read
//	date                       - YYYY-MM-DD string <-> time.Time
//	datetime                   - RFC 3339 string <-> time.Time
//	timestamp                  - unix seconds <-> time.Time
//	encrypted                  - reversible AES-GCM transform
//	hashed                     - one-way bcrypt transform, never reversed
const (
	CastInt       = "int"
	CastFloat     = "float"
	CastBool      = "bool"
	CastString    = "string"
	CastJSON      = "json"
	CastArray     = "array"
	CastDate      = "date"
	CastDatetime  = "datetime"
	CastTimestamp = "timestamp"
	CastEncrypted = "encrypted"
	CastHashed    = "hashed"
)

const dateLayout = "2006-01-02"

var (
	encryptionKey   []byte
	encryptionMutex sync.RWMutex
)

// SetEncryptionKey installs the 16-, 24-, or 32-byte AES key used by the
// "encrypted" cast. Entities with encrypted attributes fail their casts
// until a key is installed.
func SetEncryptionKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
	default:
		return configErrorf("encryption key must be 16, 24, or 32 bytes, got %d", len(key))
	}
	encryptionMutex.Lock()
	defer encryptionMutex.Unlock()
	encryptionKey = append([]byte(nil), key...)
	return nil
}

// castWrite applies the storage-bound side of a cast.
func castWrite(castType string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	base, arg := splitCastType(castType)
	switch base {
	case CastInt:
		return toInt64(value)
	case CastFloat:
		return toFloat64(value)
	case CastBool:
		return toBool(value)
	case CastString:
		return toString(value), nil
	case "decimal":
		f, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		places, _ := strconv.Atoi(arg)
		return strconv.FormatFloat(f, 'f', places, 64), nil
	case CastJSON, CastArray:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cast %s: %w", base, err)
		}
		return string(encoded), nil
	case CastDate:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.Format(dateLayout), nil
	case CastDatetime:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case CastTimestamp:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.Unix(), nil
	case CastEncrypted:
		return encryptString(toString(value))
	case CastHashed:
		s := toString(value)
		if looksHashed(s) {
			return s, nil
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("cast hashed: %w", err)
		}
		return string(hashed), nil
	default:
		return value, nil
	}
}

// castRead applies the application-bound side of a cast.
//
// For every reversible cast type, castRead(castWrite(v)) == v over the
// representative value space. The hashed cast is deliberately one-way and
// reads back the stored digest unchanged.
func castRead(castType string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	base, _ := splitCastType(castType)
	switch base {
	case CastInt:
		return toInt64(value)
	case CastFloat:
		return toFloat64(value)
	case CastBool:
		return toBool(value)
	case CastString:
		return toString(value), nil
	case "decimal":
		return toFloat64(value)
	case CastJSON, CastArray:
		text, ok := value.(string)
		if !ok {
			// Already structured (document stores hand maps back).
			return value, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, fmt.Errorf("cast %s: %w", base, err)
		}
		return decoded, nil
	case CastDate:
		return toTime(value)
	case CastDatetime:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case CastTimestamp:
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case CastEncrypted:
		text, ok := value.(string)
		if !ok {
			return nil, configErrorf("encrypted attribute holds %T, expected string", value)
		}
		return decryptString(text)
	case CastHashed:
		return value, nil
	default:
		return value, nil
	}
}

// CheckHashed verifies a plaintext candidate against a stored hashed
// attribute, since the hashed cast is never reversed on read.
func CheckHashed(stored, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

func splitCastType(castType string) (base, arg string) {
	if i := strings.IndexByte(castType, ':'); i >= 0 {
		return castType[:i], castType[i+1:]
	}
	return castType, ""
}

func looksHashed(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

//region scalar coercions

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("cast int: cannot coerce %T", value)
	}
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cast float: cannot coerce %T", value)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("cast bool: cannot coerce %T", value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return *v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, dateLayout, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cast date: unparseable time %q", v)
	default:
		return time.Time{}, fmt.Errorf("cast date: cannot coerce %T", value)
	}
}

//endregion

//region encrypted cast

func encryptString(plaintext string) (string, error) {
	encryptionMutex.RLock()
	key := encryptionKey
	encryptionMutex.RUnlock()
	if key == nil {
		return "", configErrorf("encrypted cast used before SetEncryptionKey")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptString(encoded string) (string, error) {
	encryptionMutex.RLock()
	key := encryptionKey
	encryptionMutex.RUnlock()
	if key == nil {
		return "", configErrorf("encrypted cast used before SetEncryptionKey")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("cast encrypted: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", configErrorf("encrypted attribute too short to carry a nonce")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	opened, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("cast encrypted: %w", err)
	}
	return string(opened), nil
}

//endregion
