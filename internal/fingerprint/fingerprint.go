// Package fingerprint derives stable content keys for generation inputs.
//
// A fingerprint is the SHA-256 of the canonical JSON form of a value: object
// keys sorted, insignificant whitespace removed, and numbers normalized, so
// that two semantically equal inputs always hash to the same key regardless
// of how they were serialized on the way in.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Size is the length in hex characters of a fingerprint.
const Size = sha256.Size * 2

// ErrNotSerializable is returned when a value cannot be encoded as JSON.
var ErrNotSerializable = errors.New("value is not JSON serializable")

// jobNamespace scopes deterministic job IDs so they cannot collide with
// UUIDs generated for other purposes.
var jobNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("recap-api/jobs"))

// Of returns the fingerprint of value. Raw JSON ([]byte or json.RawMessage)
// is canonicalized as-is; anything else is marshaled first.
func Of(value any) (string, error) {
	canonical, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize returns the canonical JSON encoding of value.
func Canonicalize(value any) ([]byte, error) {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrNotSerializable)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// encoding/json writes map keys in sorted order, which is what makes
	// the output independent of the input's key order.
	if err := enc.Encode(normalize(generic)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalize rewrites numbers into a single textual form so that 1, 1.0
// and 1e0 compare equal.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	case json.Number:
		return normalizeNumber(t)
	default:
		return t
	}
}

// normalizeNumber rewrites n as the shortest exact decimal for its value.
// No float conversion takes place, so numbers compare equal exactly when
// they denote the same decimal: 1, 1.0 and 10e-1 match, while integers
// beyond float64 precision stay distinct.
//
// Integers with up to 21 digits are written plainly, as are fractions whose
// first significant digit is within six places of the point. Everything else
// uses d.ddde<exp>.
func normalizeNumber(n json.Number) json.Number {
	s := string(n)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var exp int64
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		e, err := strconv.ParseInt(s[i+1:], 10, 64)
		if err != nil || e > math.MaxInt32 || e < math.MinInt32 {
			return n
		}
		exp = e
		s = s[:i]
	}

	intPart, frac, _ := strings.Cut(s, ".")
	digits := strings.TrimLeft(intPart+frac, "0")
	exp -= int64(len(frac))
	trimmed := strings.TrimRight(digits, "0")
	exp += int64(len(digits) - len(trimmed))
	digits = trimmed

	if digits == "" {
		return "0"
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	// point is where the decimal point falls relative to the first digit.
	point := int64(len(digits)) + exp
	switch {
	case exp >= 0 && point <= 21:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", int(exp)))
	case exp < 0 && point > 0:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	case exp < 0 && point > -6:
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", int(-point)))
		b.WriteString(digits)
	default:
		b.WriteString(digits[:1])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		b.WriteString(strconv.FormatInt(point-1, 10))
	}
	return json.Number(b.String())
}

// JobID returns the deterministic job identifier for a job type and
// fingerprint. Equal inputs always address the same job.
func JobID(jobType, fingerprint string) string {
	return uuid.NewSHA1(jobNamespace, []byte(jobType+":"+fingerprint)).String()
}

// Valid reports whether s looks like a fingerprint produced by Of.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
