package value

import (
	"strings"

	"github.com/wippyai/freelan-binding/native"
)

// Kind tags a Value with its native type. Kinds are zero-size types used
// only as type parameters.
type Kind interface {
	TypeName() string
}

// IPKind is an IP address family.
type IPKind interface {
	IPv4 | IPv6
	Kind
}

// AddressKind is anything an endpoint can be built on.
type AddressKind interface {
	IPv4 | IPv6 | Host
	Kind
}

// compositeKind is implemented by kinds made of two parts.
type compositeKind interface {
	Kind
	Parts() (first, second string)
}

type (
	IPv4 struct{}
	IPv6 struct{}
	Host struct{}
	Port struct{}
)

func (IPv4) TypeName() string { return native.IPv4Address }
func (IPv6) TypeName() string { return native.IPv6Address }
func (Host) TypeName() string { return native.Hostname }
func (Port) TypeName() string { return native.PortNumber }

// PrefixLengthOf is the prefix length kind of address family A.
type PrefixLengthOf[A IPKind] struct{}

func (PrefixLengthOf[A]) TypeName() string {
	var a A
	return derivedName(a.TypeName(), "PrefixLength")
}

// EndpointOf is the endpoint kind built on address kind A.
type EndpointOf[A AddressKind] struct{}

func (EndpointOf[A]) TypeName() string {
	var a A
	return derivedName(a.TypeName(), "Endpoint")
}

func (EndpointOf[A]) Parts() (string, string) {
	var a A
	return a.TypeName(), native.PortNumber
}

// RouteOf is the route kind of address family A.
type RouteOf[A IPKind] struct{}

func (RouteOf[A]) TypeName() string {
	var a A
	return derivedName(a.TypeName(), "Route")
}

func (RouteOf[A]) Parts() (string, string) {
	var a A
	return a.TypeName(), PrefixLengthOf[A]{}.TypeName()
}

// derivedName builds a composite type name from an address type name:
// IPv4Address becomes IPv4Endpoint, Hostname becomes HostnameEndpoint.
func derivedName(address, suffix string) string {
	return strings.TrimSuffix(address, "Address") + suffix
}

// Wrapper types, one per native value type.
type (
	IPv4Address      = Value[IPv4]
	IPv6Address      = Value[IPv6]
	Hostname         = Value[Host]
	PortNumber       = Value[Port]
	IPv4PrefixLength = Value[PrefixLengthOf[IPv4]]
	IPv6PrefixLength = Value[PrefixLengthOf[IPv6]]
	IPv4Endpoint     = Value[EndpointOf[IPv4]]
	IPv6Endpoint     = Value[EndpointOf[IPv6]]
	HostnameEndpoint = Value[EndpointOf[Host]]
	IPv4Route        = Value[RouteOf[IPv4]]
	IPv6Route        = Value[RouteOf[IPv6]]
)

// kinds lists every bound kind. Scalars come before the composites that
// are made of them.
var kinds = []Kind{
	IPv4{},
	IPv6{},
	Host{},
	Port{},
	PrefixLengthOf[IPv4]{},
	PrefixLengthOf[IPv6]{},
	EndpointOf[IPv4]{},
	EndpointOf[IPv6]{},
	EndpointOf[Host]{},
	RouteOf[IPv4]{},
	RouteOf[IPv6]{},
}
