package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Convertable 配置数据转换接口，options 实现此接口时会被转换为构造函数的参数类型
type Convertable interface {
	ConvertTo(object any) error
}

// TypeOptions 通过命名空间和类型名定位构造函数
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type"`
	Options   any    `cfg:"options"`
}

type constructor struct {
	fn           reflect.Value
	hasOptions   bool
	returnsError bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func newConstructor(fn any) (*constructor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}
	t := v.Type()
	if t.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 input parameters, got %d", t.NumIn())
	}
	if t.NumOut() != 1 && t.NumOut() != 2 {
		return nil, errors.Errorf("constructor must have 1 or 2 return values, got %d", t.NumOut())
	}
	if t.NumOut() == 2 && !t.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be error")
	}
	return &constructor{fn: v, hasOptions: t.NumIn() == 1, returnsError: t.NumOut() == 2}, nil
}

func (c *constructor) call(options any) (any, error) {
	var args []reflect.Value
	if c.hasOptions {
		arg, err := c.prepare(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	out := c.fn.Call(args)
	if c.returnsError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// prepare 把 options 转成构造函数需要的参数，nil 时传入零值
func (c *constructor) prepare(options any) (reflect.Value, error) {
	paramType := c.fn.Type().In(0)

	if convertable, ok := options.(Convertable); ok {
		target := paramType
		if target.Kind() == reflect.Ptr {
			target = target.Elem()
		}
		v := reflect.New(target)
		if err := convertable.ConvertTo(v.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %v failed", paramType)
		}
		if paramType.Kind() == reflect.Ptr {
			return v, nil
		}
		return v.Elem(), nil
	}

	if options == nil {
		if paramType.Kind() == reflect.Ptr {
			return reflect.New(paramType.Elem()), nil
		}
		return reflect.Zero(paramType), nil
	}

	v := reflect.ValueOf(options)
	if !v.Type().AssignableTo(paramType) {
		return reflect.Value{}, errors.Errorf("options type %v is not assignable to %v", v.Type(), paramType)
	}
	return v, nil
}

var registry sync.Map

func key(namespace, typ string) string {
	return namespace + ":" + typ
}

// Register 注册构造函数，同一个 key 重复注册相同函数时忽略
func Register(namespace string, typ string, fn any) error {
	if existing, ok := registry.Load(key(namespace, typ)); ok {
		if existing.(*constructor).fn.Pointer() == reflect.ValueOf(fn).Pointer() {
			return nil
		}
		return errors.Errorf("constructor for %s already registered with different function", key(namespace, typ))
	}

	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessage(err, "newConstructor failed")
	}
	registry.Store(key(namespace, typ), c)
	return nil
}

func MustRegister(namespace string, typ string, fn any) {
	if err := Register(namespace, typ, fn); err != nil {
		panic(err)
	}
}

// RegisterT 使用类型 T 的包路径和类型名注册
func RegisterT[T any](fn any) error {
	namespace, typ, err := typeKey[T]()
	if err != nil {
		return err
	}
	return Register(namespace, typ, fn)
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

func typeKey[T any]() (string, string, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return "", "", errors.Errorf("cannot determine package path or type name for %v", t)
	}
	return t.PkgPath(), t.Name(), nil
}

func New(namespace string, typ string, options any) (any, error) {
	v, ok := registry.Load(key(namespace, typ))
	if !ok {
		return nil, errors.Errorf("constructor not found for %s", key(namespace, typ))
	}
	return v.(*constructor).call(options)
}

func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("type options is nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}

// NewT 创建对象并断言为 T，T 通常是接口类型
func NewT[T any](options *TypeOptions) (T, error) {
	var zero T
	if options == nil {
		return zero, errors.New("type options is nil")
	}
	obj, err := NewWithOptions(options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("object of type %T does not implement %T", obj, zero)
	}
	return t, nil
}
