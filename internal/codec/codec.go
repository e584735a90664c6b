// Package codec implements canonical JSON encoding and content hashing
// (spec.md C1). Canonical encoding sorts keyed-map keys byte-wise,
// preserves list order, and never emits whitespace, so two in-memory
// values that are equal up to map key order always hash identically.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// Decode parses raw JSON bytes into the value model this package deals
// in: nil, bool, int64, float64, string, []any, map[string]any. Numbers
// that fit in int64 without fractional part decode as int64 so that
// round-tripping integers never introduces "1" -> "1.0" drift.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, aerr.Wrap(aerr.KindInvalidJSON, err, "decode canonical value")
	}
	if dec.More() {
		return nil, aerr.New(aerr.KindInvalidJSON, "trailing data after JSON value")
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Encode produces the canonical byte sequence for v: sorted map keys,
// preserved list order, no whitespace, UTF-8. Returns EncodingError for
// NaN/±Inf floats or non-string map keys.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case int:
		buf.WriteString(strconv.FormatInt(int64(t), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
		return nil
	case float64:
		return encodeFloat(buf, t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return aerr.Wrap(aerr.KindEncoding, err, "invalid json.Number %q", string(t))
		}
		return encodeFloat(buf, f)
	case string:
		return encodeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return aerr.New(aerr.KindEncoding, "unsupported value type %T", v)
	}
}

func encodeFloat(buf *bytes.Buffer, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return aerr.New(aerr.KindEncoding, "NaN/Inf is not JSON-representable")
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return aerr.Wrap(aerr.KindEncoding, err, "encode string")
	}
	buf.Write(raw)
	return nil
}

// Hash returns the lowercase hex SHA-256 of v's canonical encoding.
func Hash(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes returns the lowercase hex SHA-256 of raw bytes directly,
// used by the atomic writer to verify already-encoded content.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalizeJSON decodes raw and re-encodes it canonically; used
// anywhere a caller has ad-hoc JSON (e.g. from gjson) that must be
// forced into the canonical byte form before persisting or hashing.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Encode(v)
}

// DeepEqual reports whether two decoded values are equal regardless of
// map key order (list order still matters).
func DeepEqual(a, b any) bool {
	ea, err := Encode(a)
	if err != nil {
		return false
	}
	eb, err := Encode(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// MustString is a small helper for call sites that need a human label
// for an error; never used to persist data.
func MustString(v any) string {
	return fmt.Sprintf("%v", v)
}
