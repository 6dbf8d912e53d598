package value

import (
	"fmt"

	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
)

// Any is a value whose type is only known at run time.
type Any interface {
	fmt.Stringer
	TypeName() string
	Handle() native.Ptr
	Format() (string, error)
	Hash() (uint64, error)
	Close() error
}

type dynamicType struct {
	parse func(r *Registry, text string) (Any, error)
	parts func(v Any) ([]Any, error)
}

var dynamicTypes = map[string]dynamicType{
	native.IPv4Address:      {parse: parseAny[IPv4]},
	native.IPv6Address:      {parse: parseAny[IPv6]},
	native.Hostname:         {parse: parseAny[Host]},
	native.PortNumber:       {parse: parseAny[Port]},
	native.IPv4PrefixLength: {parse: parseAny[PrefixLengthOf[IPv4]]},
	native.IPv6PrefixLength: {parse: parseAny[PrefixLengthOf[IPv6]]},
	native.IPv4Endpoint:     {parse: parseAny[EndpointOf[IPv4]], parts: endpointParts[IPv4]},
	native.IPv6Endpoint:     {parse: parseAny[EndpointOf[IPv6]], parts: endpointParts[IPv6]},
	native.HostnameEndpoint: {parse: parseAny[EndpointOf[Host]], parts: endpointParts[Host]},
	native.IPv4Route:        {parse: parseAny[RouteOf[IPv4]], parts: routeParts[IPv4]},
	native.IPv6Route:        {parse: parseAny[RouteOf[IPv6]], parts: routeParts[IPv6]},
}

// ParseAny parses text as the named type.
func (r *Registry) ParseAny(typeName, text string) (Any, error) {
	d, ok := dynamicTypes[typeName]
	if !ok {
		return nil, errors.NotFound(errors.PhaseParse, "value type", typeName)
	}
	return d.parse(r, text)
}

// Parts decomposes a composite into new values, address first. It returns
// nil for scalar values.
func Parts(v Any) ([]Any, error) {
	d, ok := dynamicTypes[v.TypeName()]
	if !ok || d.parts == nil {
		return nil, nil
	}
	return d.parts(v)
}

func parseAny[K Kind](r *Registry, text string) (Any, error) {
	v, err := Parse[K](r, text)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func endpointParts[A AddressKind](v Any) ([]Any, error) {
	ep, ok := v.(*Value[EndpointOf[A]])
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseBind, fmt.Sprintf("%T is not an endpoint", v))
	}
	addr, err := EndpointAddress(ep)
	if err != nil {
		return nil, err
	}
	port, err := EndpointPort(ep)
	if err != nil {
		_ = addr.Close()
		return nil, err
	}
	return []Any{addr, port}, nil
}

func routeParts[A IPKind](v Any) ([]Any, error) {
	rt, ok := v.(*Value[RouteOf[A]])
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseBind, fmt.Sprintf("%T is not a route", v))
	}
	addr, err := RouteAddress(rt)
	if err != nil {
		return nil, err
	}
	length, err := RoutePrefixLength(rt)
	if err != nil {
		_ = addr.Close()
		return nil, err
	}
	return []Any{addr, length}, nil
}
