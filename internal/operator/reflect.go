package operator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
)

// Struct tags understood by the reflected classes.
//
//	type BashOperator struct {
//		BaseOperator
//
//		BashCommand    string            `op:"bash_command"`
//		XComPush       bool              `op:"xcom_push" default:"false"`
//		Env            map[string]string `op:"env" default:"null"`
//		OutputEncoding string            `op:"output_encoding" default:"utf-8"`
//	}
//
// The op tag holds the parameter name followed by options: "variadic" and
// "kwargs" mark catch-all parameters, "-" skips the field. A field without a
// name in its op tag is named by converting the Go field name to snake_case.
// The presence of a default tag makes the parameter optional; its text is
// parsed according to the field's type.
const (
	tagName    = "op"
	tagDefault = "default"
)

var durationType = reflect.TypeOf(time.Duration(0))

// reflectClass is a Class backed by a Go struct type. The first embedded
// struct field is the base class.
type reflectClass struct {
	t   reflect.Type
	reg *Registry
}

var _ Class = reflectClass{}

// paramsResult memoizes field parsing per type.
type paramsResult struct {
	params []Parameter
	err    error
}

// paramCache caches parsed parameters by struct type. Parsing is a pure
// function of the type, so entries never need invalidation.
var paramCache sync.Map // key: reflect.Type, val: paramsResult

func (r *Registry) classOf(t reflect.Type) Class {
	return reflectClass{t: t, reg: r}
}

// structType unwraps pointers and checks t is a named struct.
func structType(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, ErrNilType
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct type", ErrIntrospection, t)
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("%w: anonymous struct types cannot be operators", ErrIntrospection)
	}
	return t, nil
}

func (c reflectClass) Name() string {
	return stripTypeParams(c.t.Name())
}

func (c reflectClass) Module() string {
	if meta, ok := c.reg.Lookup(c.t); ok && meta.Module != "" {
		return meta.Module
	}
	return c.t.PkgPath()
}

func (c reflectClass) QualifiedName() string {
	return QualifiedName(c.Module(), c.Name())
}

func (c reflectClass) Doc() string {
	meta, _ := c.reg.Lookup(c.t)
	return meta.Doc
}

func (c reflectClass) Base() Class {
	for i := 0; i < c.t.NumField(); i++ {
		f := c.t.Field(i)
		if !f.Anonymous || f.Tag.Get(tagName) == "-" {
			continue
		}
		bt := f.Type
		for bt.Kind() == reflect.Ptr {
			bt = bt.Elem()
		}
		if bt.Kind() == reflect.Struct && bt.Name() != "" {
			return c.reg.classOf(bt)
		}
	}
	return nil
}

func (c reflectClass) Parameters() ([]Parameter, error) {
	if v, ok := paramCache.Load(c.t); ok {
		res := v.(paramsResult)
		return clone(res.params), res.err
	}
	params, err := parseFields(c.t)
	paramCache.Store(c.t, paramsResult{params: params, err: err})
	return clone(params), err
}

func clone(ps []Parameter) []Parameter {
	if ps == nil {
		return nil
	}
	out := make([]Parameter, len(ps))
	copy(out, ps)
	return out
}

// parseFields turns the exported, non-embedded fields of t into parameters.
func parseFields(t reflect.Type) ([]Parameter, error) {
	params := make([]Parameter, 0, t.NumField())
	seen := make(map[string]bool)

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}

		tag := f.Tag.Get(tagName)
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = snakeCase(f.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s: duplicate parameter %q", ErrIntrospection, t.Name(), name)
		}
		seen[name] = true

		p := Parameter{Name: name, Kind: Positional}
		for _, opt := range strings.Split(opts, ",") {
			switch strings.TrimSpace(opt) {
			case "variadic":
				p.Kind = Variadic
			case "kwargs":
				p.Kind = Keywords
			}
		}

		if raw, ok := f.Tag.Lookup(tagDefault); ok {
			def, err := parseDefault(f.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: default %q: %v", ErrIntrospection, t.Name(), f.Name, raw, err)
			}
			p.HasDefault = true
			p.Default = def
		}
		params = append(params, p)
	}
	return params, nil
}

// parseDefault parses the text of a default tag according to the field type.
func parseDefault(t reflect.Type, raw string) (any, error) {
	if t == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, err
		}
		return d.String(), nil
	}

	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		return strconv.ParseBool(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(raw, 0, t.Bits())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseUint(raw, 0, t.Bits())
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(raw, t.Bits())
	case reflect.Ptr:
		if isNull(raw) {
			return nil, nil
		}
		return parseDefault(t.Elem(), raw)
	case reflect.Interface:
		if isNull(raw) {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return raw, nil
		}
		return v, nil
	case reflect.Slice, reflect.Map, reflect.Array:
		if isNull(raw) {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported field kind %s", t.Kind())
	}
}

func isNull(s string) bool {
	return s == "" || s == "null" || s == "None"
}

// snakeCase converts a Go identifier to snake_case: "OutputEncoding" ->
// "output_encoding", "S3Key" -> "s3_key", "HTTPConnID" -> "http_conn_id".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripTypeParams removes generic type instantiation suffix: "T[int,string]" -> "T".
func stripTypeParams(s string) string {
	if i := strings.IndexByte(s, '['); i >= 0 {
		return s[:i]
	}
	return s
}
