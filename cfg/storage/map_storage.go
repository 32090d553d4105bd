package storage

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/workerplane/cfg/validator"
)

// MapStorage 基于 map 和 slice 的配置存储
type MapStorage struct {
	data any
}

func NewMapStorage(data any) *MapStorage {
	return &MapStorage{data: data}
}

func (ms *MapStorage) Data() any {
	return ms.data
}

// Sub 获取子配置，key 用点号分隔，大小写不敏感
func (ms *MapStorage) Sub(key string) *MapStorage {
	if key == "" {
		return ms
	}
	current := ms.data
	for _, k := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return NewMapStorage(nil)
		}
		current = lookup(m, k)
	}
	return NewMapStorage(current)
}

// Set 设置 key 对应的值，中间层级不存在时自动创建
func (ms *MapStorage) Set(key string, value any) error {
	root, ok := ms.data.(map[string]any)
	if !ok {
		if ms.data != nil {
			return errors.New("root is not a map")
		}
		root = map[string]any{}
		ms.data = root
	}

	parts := strings.Split(key, ".")
	node := root
	for _, part := range parts[:len(parts)-1] {
		name := matchKey(node, part)
		child, ok := node[name].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[name] = child
		}
		node = child
	}
	node[matchKey(node, parts[len(parts)-1])] = value
	return nil
}

// ConvertTo 把配置转换到 object，之后填充默认值并校验
func (ms *MapStorage) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	if err := convert(ms.data, rv.Elem()); err != nil {
		return err
	}
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}
	if err := validator.ValidateStruct(object); err != nil {
		return errors.Wrap(err, "validate failed")
	}
	return nil
}

func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func matchKey(m map[string]any, key string) string {
	for k := range m {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}

func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json", "yaml"} {
		if name := strings.Split(field.Tag.Get(tag), ",")[0]; name != "" && name != "-" {
			return name
		}
	}
	return field.Name
}

func convert(src any, dst reflect.Value) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return convert(src, dst.Elem())
	}

	sv := reflect.ValueOf(src)
	if dst.Kind() == reflect.Interface && dst.Type().NumMethod() == 0 {
		// 子配置保持为 Storage，由使用方再转换成具体类型
		if _, ok := src.(map[string]any); ok {
			dst.Set(reflect.ValueOf(NewMapStorage(src)))
			return nil
		}
		dst.Set(sv)
		return nil
	}

	if s, ok := src.(string); ok && dst.Kind() != reflect.String {
		return setString(dst, s)
	}

	if dst.Type() == durationType {
		// 数字按秒处理
		switch sv.Kind() {
		case reflect.Int, reflect.Int64, reflect.Float64, reflect.Uint64:
			dst.SetInt(int64(sv.Convert(reflect.TypeOf(float64(0))).Float() * 1e9))
			return nil
		}
	}

	switch dst.Kind() {
	case reflect.Struct:
		m, ok := src.(map[string]any)
		if !ok {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		rt := dst.Type()
		for i := 0; i < rt.NumField(); i++ {
			if !dst.Field(i).CanSet() {
				continue
			}
			v := lookup(m, fieldName(rt.Field(i)))
			if err := convert(v, dst.Field(i)); err != nil {
				return errors.WithMessagef(err, "field %s", rt.Field(i).Name)
			}
		}
		return nil
	case reflect.Map:
		if sv.Kind() != reflect.Map {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		if dst.IsNil() {
			dst.Set(reflect.MakeMap(dst.Type()))
		}
		iter := sv.MapRange()
		for iter.Next() {
			ev := reflect.New(dst.Type().Elem()).Elem()
			if err := convert(iter.Value().Interface(), ev); err != nil {
				return errors.WithMessagef(err, "key %v", iter.Key())
			}
			key := iter.Key()
			if key.Kind() == reflect.Interface {
				key = key.Elem()
			}
			if !key.Type().ConvertibleTo(dst.Type().Key()) {
				return errors.Errorf("cannot convert key %v to %v", key.Type(), dst.Type().Key())
			}
			dst.SetMapIndex(key.Convert(dst.Type().Key()), ev)
		}
		return nil
	case reflect.Slice:
		if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
			return errors.Errorf("cannot convert %T to %v", src, dst.Type())
		}
		slice := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
		for i := 0; i < sv.Len(); i++ {
			if err := convert(sv.Index(i).Interface(), slice.Index(i)); err != nil {
				return errors.WithMessagef(err, "index %d", i)
			}
		}
		dst.Set(slice)
		return nil
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if isNumber(sv.Kind()) && isNumber(dst.Kind()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot convert %T to %v", src, dst.Type())
}

func isNumber(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}
