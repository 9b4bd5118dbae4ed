package entity

import (
	"fmt"
	"strconv"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/shopspring/decimal"
)

// Param is a single named value of a payment request. Value holds a scalar,
// a nested Params or a list of Params.
type Param struct {
	Key   string
	Value any
}

// Params is an ordered parameter tree. Insertion order is kept on the wire
// and drives the index suffixes of the flattened form.
type Params []Param

func (p *Params) Add(key string, value any) {
	*p = append(*p, Param{Key: key, Value: value})
}

// Set replaces the value of an existing key in place, or appends a new one.
func (p *Params) Set(key string, value any) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	p.Add(key, value)
}

func (p Params) Get(key string) (any, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return nil, false
}

// Value returns the string form of a top-level scalar, empty when absent.
func (p Params) Value(key string) string {
	value, ok := p.Get(key)
	if !ok {
		return ""
	}
	return FormatValue(value)
}

// Without returns a copy of the tree without the given top-level keys.
func (p Params) Without(keys ...string) Params {
	result := make(Params, 0, len(p))
	for _, param := range p {
		skip := false
		for _, key := range keys {
			if param.Key == key {
				skip = true
				break
			}
		}
		if !skip {
			result = append(result, param)
		}
	}
	return result
}

// Flatten turns the tree into a flat map. Every key is named
// parent + key + three digit position (counted from 1 on each level), so
// pg_receipt -> positions -> first line -> price becomes
// "pg_receipt019positions0030001price003". List elements are keyed by
// their zero based index. The first value wins on a name collision.
func (p Params) Flatten() map[string]string {
	flat := make(map[string]string)
	flatten(flat, "", p)
	return flat
}

func flatten(flat map[string]string, parent string, params Params) {
	for i, param := range params {
		name := fmt.Sprintf("%s%s%03d", parent, param.Key, i+1)
		switch value := param.Value.(type) {
		case Params:
			flatten(flat, name, value)
		case []Params:
			flatten(flat, name, listParams(value))
		default:
			if _, exists := flat[name]; !exists {
				flat[name] = FormatValue(value)
			}
		}
	}
}

func listParams(list []Params) Params {
	params := make(Params, 0, len(list))
	for i, item := range list {
		params = append(params, Param{Key: strconv.Itoa(i), Value: item})
	}
	return params
}

// FormatValue converts a scalar to the string the processor signs:
// decimals drop trailing zeros, true is "1", false and nil are empty.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case decimal.Decimal:
		return v.String()
	case bool:
		if v {
			return "1"
		}
		return ""
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}

// JSON encodes the tree keeping key order; non-ASCII text and slashes are
// written as is.
func (p Params) JSON() ([]byte, error) {
	w := jwriter.Writer{NoEscapeHTML: true}
	p.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

func (p Params) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	for i, param := range p {
		if i > 0 {
			w.RawByte(',')
		}
		w.String(param.Key)
		w.RawByte(':')
		writeValue(w, param.Value)
	}
	w.RawByte('}')
}

func writeValue(w *jwriter.Writer, value any) {
	switch v := value.(type) {
	case nil:
		w.RawString("null")
	case string:
		w.String(v)
	case int:
		w.Int(v)
	case int64:
		w.Int64(v)
	case float64:
		w.Float64(v)
	case bool:
		w.Bool(v)
	case decimal.Decimal:
		w.RawString(v.String())
	case Params:
		v.MarshalEasyJSON(w)
	case []Params:
		w.RawByte('[')
		for i, item := range v {
			if i > 0 {
				w.RawByte(',')
			}
			item.MarshalEasyJSON(w)
		}
		w.RawByte(']')
	default:
		w.String(FormatValue(v))
	}
}

// UnmarshalEasyJSON reads an object keeping key order. Numbers become
// decimals, arrays are read as lists of objects.
func (p *Params) UnmarshalEasyJSON(in *jlexer.Lexer) {
	if in.IsNull() {
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		p.Add(key, readValue(in))
		in.WantComma()
	}
	in.Delim('}')
}

func readValue(in *jlexer.Lexer) any {
	switch {
	case in.IsNull():
		in.Skip()
		return nil
	case in.IsDelim('{'):
		var nested Params
		nested.UnmarshalEasyJSON(in)
		return nested
	case in.IsDelim('['):
		var list []Params
		in.Delim('[')
		for !in.IsDelim(']') {
			var item Params
			item.UnmarshalEasyJSON(in)
			list = append(list, item)
			in.WantComma()
		}
		in.Delim(']')
		return list
	}
	value := in.Interface()
	if number, ok := value.(float64); ok {
		return decimal.NewFromFloat(number)
	}
	return value
}
