package value

import (
	"slices"

	"github.com/samber/lo"
	"github.com/wippyai/freelan-binding/ectx"
	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/zap"
)

// Library is the part of the native library values are built on.
type Library interface {
	Symbol(name string) (any, bool)
	Memory() native.Memory
	Free(ptr native.Ptr)
}

// Type holds the resolved entry points of one native value type.
type Type struct {
	fromString native.FromStringFunc
	toString   native.ToStringFunc
	free       native.ValueFreeFunc
	equal      native.CompareFunc
	less       native.CompareFunc
	getters    map[string]native.GetterFunc
	name       string
	parts      []string
}

// Name returns the native type name.
func (t *Type) Name() string {
	return t.name
}

// Parts returns the part type names of a composite, or nil.
func (t *Type) Parts() []string {
	return t.parts
}

// Registry binds every value type once and hands out the same *Type for
// repeated requests.
type Registry struct {
	lib      Library
	contexts *ectx.Registry
	types    map[string]*Type
}

// NewRegistry resolves the entry points of every value type. It fails with
// a MissingSymbolsError listing every symbol lib does not export.
func NewRegistry(lib Library, contexts *ectx.Registry) (*Registry, error) {
	r := &Registry{
		lib:      lib,
		contexts: contexts,
		types:    make(map[string]*Type, len(kinds)),
	}

	var missing []errors.MissingSymbol
	for _, k := range kinds {
		b := binder{lib: lib, typeName: k.TypeName()}
		t := &Type{
			name:       b.typeName,
			fromString: bind[native.FromStringFunc](&b, "from_string"),
			toString:   bind[native.ToStringFunc](&b, "to_string"),
			free:       bind[native.ValueFreeFunc](&b, "free"),
			equal:      bind[native.CompareFunc](&b, "equal"),
			less:       bind[native.CompareFunc](&b, "less_than"),
		}
		if c, ok := k.(compositeKind); ok {
			first, second := c.Parts()
			t.parts = []string{first, second}
			t.getters = map[string]native.GetterFunc{
				first:  bind[native.GetterFunc](&b, "get_"+first),
				second: bind[native.GetterFunc](&b, "get_"+second),
			}
		}
		missing = append(missing, b.missing...)
		r.types[t.name] = t
	}

	if len(missing) > 0 {
		return nil, &errors.MissingSymbolsError{Symbols: missing}
	}

	Logger().Debug("value types bound", zap.Int("types", len(r.types)))
	return r, nil
}

// Type returns the bound type with the given name.
func (r *Registry) Type(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseBind, "value type", name)
	}
	return t, nil
}

// TypeNames returns the bound type names, sorted.
func (r *Registry) TypeNames() []string {
	names := lo.Keys(r.types)
	slices.Sort(names)
	return names
}

// Contexts returns the error-context registry values are parsed with.
func (r *Registry) Contexts() *ectx.Registry {
	return r.contexts
}

func (r *Registry) typeOf(k Kind) *Type {
	t, ok := r.types[k.TypeName()]
	if !ok {
		// every Kind in this package is bound by NewRegistry
		panic(errors.NotFound(errors.PhaseBind, "value type", k.TypeName()))
	}
	return t
}

type binder struct {
	lib      Library
	typeName string
	missing  []errors.MissingSymbol
}

func bind[F any](b *binder, op string) F {
	name := "freelan_" + b.typeName + "_" + op
	var zero F
	sym, ok := b.lib.Symbol(name)
	if !ok {
		b.missing = append(b.missing, errors.MissingSymbol{TypeName: b.typeName, Symbol: name})
		return zero
	}
	fn, ok := sym.(F)
	if !ok {
		Logger().Error("native symbol has unexpected type", zap.String("symbol", name))
		b.missing = append(b.missing, errors.MissingSymbol{TypeName: b.typeName, Symbol: name})
		return zero
	}
	return fn
}
