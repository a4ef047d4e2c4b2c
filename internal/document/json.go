package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Encode returns the compact JSON form of v with object keys in insertion
// order. Absent values encode as null inside arrays and are omitted from
// objects.
func Encode(v Value) string {
	var buf bytes.Buffer
	appendValue(&buf, v)
	return buf.String()
}

// Pretty returns v as JSON indented by two spaces.
func Pretty(v Value) string {
	compact := Encode(v)
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(compact), "", "  "); err != nil {
		return compact
	}
	return buf.String()
}

func appendValue(buf *bytes.Buffer, v Value) {
	switch t := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(t)))
	case Number:
		buf.WriteString(formatNumber(float64(t)))
	case String:
		appendString(buf, string(t))
	case Array:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendValue(buf, e)
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		first := true
		for _, k := range t.keys {
			fv := t.fields[k]
			if fv == nil {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			appendString(buf, k)
			buf.WriteByte(':')
			appendValue(buf, fv)
		}
		buf.WriteByte('}')
	}
}

func appendString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		buf.WriteString(`""`)
		return
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
}

// formatNumber renders f the way JavaScript prints numbers: integers without
// a fraction, exponent form outside [1e-6, 1e21).
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return "null"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Decode parses strict JSON into a Value, keeping object key order.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("document: trailing data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := kt.(string)
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := Array{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("document: unexpected delimiter %q", t)
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("document: bad number %s: %w", t, err)
		}
		return Number(f), nil
	case string:
		return String(t), nil
	}
	return nil, fmt.Errorf("document: unexpected token %v", tok)
}

// MarshalJSON encodes the object with its keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	return []byte(Encode(o)), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*Object)
	if !ok {
		return fmt.Errorf("document: expected an object, got %s", Encode(v))
	}
	*o = *obj
	return nil
}
