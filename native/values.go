package native

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Entry point signatures resolved through Library.Symbol.
type (
	FromStringFunc func(ectx Ptr, text string) Ptr
	ToStringFunc   func(ectx Ptr, v Ptr) Ptr
	ValueFreeFunc  func(v Ptr)
	CompareFunc    func(a, b Ptr) bool
	GetterFunc     func(v Ptr) Ptr
)

// Value type names.
const (
	IPv4Address      = "IPv4Address"
	IPv6Address      = "IPv6Address"
	Hostname         = "Hostname"
	PortNumber       = "PortNumber"
	IPv4PrefixLength = "IPv4PrefixLength"
	IPv6PrefixLength = "IPv6PrefixLength"
	IPv4Endpoint     = "IPv4Endpoint"
	IPv6Endpoint     = "IPv6Endpoint"
	HostnameEndpoint = "HostnameEndpoint"
	IPv4Route        = "IPv4Route"
	IPv6Route        = "IPv6Route"
)

const (
	maxHostnameLength = 253
	maxLabelLength    = 63
)

// datum is a decoded value. Composites carry their two parts.
type datum struct {
	addr  netip.Addr
	host  string
	parts []datum
	num   uint32
}

type codec interface {
	typeName() string
	parse(text string) (datum, bool)
	format(d datum) string
	compare(a, b datum) int
	store(l *Library, d datum) Ptr
	load(l *Library, p Ptr) (datum, error)
	release(l *Library, p Ptr)
}

type scalarKind uint8

const (
	kindIPv4 scalarKind = iota
	kindIPv6
	kindHostname
	kindNumber
)

type scalar struct {
	name string
	kind scalarKind
	max  uint32
	size uint32
}

var (
	ipv4Codec     = &scalar{name: IPv4Address, kind: kindIPv4, size: 4}
	ipv6Codec     = &scalar{name: IPv6Address, kind: kindIPv6, size: 16}
	hostnameCodec = &scalar{name: Hostname, kind: kindHostname}
	portCodec     = &scalar{name: PortNumber, kind: kindNumber, max: 65535, size: 2}
	prefix4Codec  = &scalar{name: IPv4PrefixLength, kind: kindNumber, max: 32, size: 1}
	prefix6Codec  = &scalar{name: IPv6PrefixLength, kind: kindNumber, max: 128, size: 1}
)

func (s *scalar) typeName() string { return s.name }

func (s *scalar) parse(text string) (datum, bool) {
	switch s.kind {
	case kindIPv4:
		a, err := netip.ParseAddr(text)
		if err != nil || !a.Is4() {
			return datum{}, false
		}
		return datum{addr: a}, true
	case kindIPv6:
		a, err := netip.ParseAddr(text)
		if err != nil || !a.Is6() || a.Zone() != "" {
			return datum{}, false
		}
		return datum{addr: a}, true
	case kindHostname:
		host, ok := parseHostname(text)
		return datum{host: host}, ok
	default:
		n, err := strconv.ParseUint(text, 10, 32)
		if err != nil || n > uint64(s.max) {
			return datum{}, false
		}
		return datum{num: uint32(n)}, true
	}
}

func (s *scalar) format(d datum) string {
	switch s.kind {
	case kindIPv4, kindIPv6:
		return d.addr.String()
	case kindHostname:
		return d.host
	default:
		return strconv.FormatUint(uint64(d.num), 10)
	}
}

func (s *scalar) compare(a, b datum) int {
	switch s.kind {
	case kindIPv4, kindIPv6:
		return a.addr.Compare(b.addr)
	case kindHostname:
		return strings.Compare(a.host, b.host)
	default:
		return cmp.Compare(a.num, b.num)
	}
}

func (s *scalar) store(l *Library, d datum) Ptr {
	var buf []byte
	switch s.kind {
	case kindIPv4, kindIPv6:
		buf = d.addr.AsSlice()
	case kindHostname:
		buf = binary.LittleEndian.AppendUint32(nil, uint32(len(d.host)))
		buf = append(buf, d.host...)
	default:
		if s.size == 2 {
			buf = binary.BigEndian.AppendUint16(nil, uint16(d.num))
		} else {
			buf = []byte{byte(d.num)}
		}
	}

	p := l.alloc(uint32(len(buf)))
	if p == 0 {
		return 0
	}
	if err := l.Memory().Write(uint32(p), buf); err != nil {
		l.Free(p)
		return 0
	}
	return p
}

func (s *scalar) load(l *Library, p Ptr) (datum, error) {
	if p == 0 {
		return datum{}, fmt.Errorf("%s: null handle", s.name)
	}
	mem := l.Memory()

	switch s.kind {
	case kindIPv4, kindIPv6:
		raw, err := mem.Read(uint32(p), s.size)
		if err != nil {
			return datum{}, err
		}
		a, _ := netip.AddrFromSlice(raw)
		return datum{addr: a}, nil
	case kindHostname:
		n, err := mem.ReadU32(uint32(p))
		if err != nil {
			return datum{}, err
		}
		if n > maxHostnameLength {
			return datum{}, fmt.Errorf("%s: corrupt length %d at %s", s.name, n, p)
		}
		raw, err := mem.Read(uint32(p)+4, n)
		if err != nil {
			return datum{}, err
		}
		return datum{host: string(raw)}, nil
	default:
		raw, err := mem.Read(uint32(p), s.size)
		if err != nil {
			return datum{}, err
		}
		if s.size == 2 {
			return datum{num: uint32(binary.BigEndian.Uint16(raw))}, nil
		}
		return datum{num: uint32(raw[0])}, nil
	}
}

func (s *scalar) release(l *Library, p Ptr) {
	l.Free(p)
}

// composite is a value made of two owned parts, such as an endpoint
// (address, port) or a route (address, prefix length).
type composite struct {
	first   *scalar
	second  *scalar
	name    string
	sep     byte
	bracket bool
}

var (
	ipv4EndpointCodec     = &composite{name: IPv4Endpoint, first: ipv4Codec, second: portCodec, sep: ':'}
	ipv6EndpointCodec     = &composite{name: IPv6Endpoint, first: ipv6Codec, second: portCodec, sep: ':', bracket: true}
	hostnameEndpointCodec = &composite{name: HostnameEndpoint, first: hostnameCodec, second: portCodec, sep: ':'}
	ipv4RouteCodec        = &composite{name: IPv4Route, first: ipv4Codec, second: prefix4Codec, sep: '/'}
	ipv6RouteCodec        = &composite{name: IPv6Route, first: ipv6Codec, second: prefix6Codec, sep: '/'}
)

func (c *composite) typeName() string { return c.name }

func (c *composite) parse(text string) (datum, bool) {
	i := strings.LastIndexByte(text, c.sep)
	if i < 0 {
		return datum{}, false
	}
	head, tail := text[:i], text[i+1:]
	if c.bracket {
		if len(head) < 2 || head[0] != '[' || head[len(head)-1] != ']' {
			return datum{}, false
		}
		head = head[1 : len(head)-1]
	}

	a, ok := c.first.parse(head)
	if !ok {
		return datum{}, false
	}
	b, ok := c.second.parse(tail)
	if !ok {
		return datum{}, false
	}
	return datum{parts: []datum{a, b}}, true
}

func (c *composite) format(d datum) string {
	head := c.first.format(d.parts[0])
	if c.bracket {
		head = "[" + head + "]"
	}
	return head + string(c.sep) + c.second.format(d.parts[1])
}

func (c *composite) compare(a, b datum) int {
	if r := c.first.compare(a.parts[0], b.parts[0]); r != 0 {
		return r
	}
	return c.second.compare(a.parts[1], b.parts[1])
}

func (c *composite) store(l *Library, d datum) Ptr {
	p := l.alloc(8)
	if p == 0 {
		return 0
	}
	a := c.first.store(l, d.parts[0])
	if a == 0 {
		l.Free(p)
		return 0
	}
	b := c.second.store(l, d.parts[1])
	if b == 0 {
		l.Free(a)
		l.Free(p)
		return 0
	}
	mem := l.Memory()
	_ = mem.WriteU32(uint32(p), uint32(a))
	_ = mem.WriteU32(uint32(p)+4, uint32(b))
	return p
}

func (c *composite) parts(l *Library, p Ptr) (Ptr, Ptr, error) {
	if p == 0 {
		return 0, 0, fmt.Errorf("%s: null handle", c.name)
	}
	mem := l.Memory()
	a, err := mem.ReadU32(uint32(p))
	if err != nil {
		return 0, 0, err
	}
	b, err := mem.ReadU32(uint32(p) + 4)
	if err != nil {
		return 0, 0, err
	}
	return Ptr(a), Ptr(b), nil
}

func (c *composite) load(l *Library, p Ptr) (datum, error) {
	pa, pb, err := c.parts(l, p)
	if err != nil {
		return datum{}, err
	}
	a, err := c.first.load(l, pa)
	if err != nil {
		return datum{}, err
	}
	b, err := c.second.load(l, pb)
	if err != nil {
		return datum{}, err
	}
	return datum{parts: []datum{a, b}}, nil
}

func (c *composite) release(l *Library, p Ptr) {
	if pa, pb, err := c.parts(l, p); err == nil {
		c.first.release(l, pa)
		c.second.release(l, pb)
	}
	l.Free(p)
}

// getter copies one part of a composite into a new value owned by the caller.
func (c *composite) getter(l *Library, index int) GetterFunc {
	part := c.first
	if index == 1 {
		part = c.second
	}
	return func(v Ptr) Ptr {
		d, err := c.load(l, v)
		if err != nil {
			l.log(LogError, CategoryValue, "invalid_handle", LogPayload{Key: "type", Value: c.name}, LogPayload{Key: "error", Value: err.Error()})
			return 0
		}
		return part.store(l, d.parts[index])
	}
}

func parseHostname(text string) (string, bool) {
	if text == "" || len(text) > maxHostnameLength {
		return "", false
	}
	host, err := idna.Lookup.ToASCII(text)
	if err != nil || host == "" || len(host) > maxHostnameLength {
		return "", false
	}
	// the root label is implied: "example.com." and "example.com" are one name
	host = strings.TrimSuffix(host, ".")
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > maxLabelLength {
			return "", false
		}
	}
	return strings.ToLower(host), true
}

var codecs = []codec{
	ipv4Codec,
	ipv6Codec,
	hostnameCodec,
	portCodec,
	prefix4Codec,
	prefix6Codec,
	ipv4EndpointCodec,
	ipv6EndpointCodec,
	hostnameEndpointCodec,
	ipv4RouteCodec,
	ipv6RouteCodec,
}

// TypeNames lists every value type the library exports.
func TypeNames() []string {
	names := make([]string, len(codecs))
	for i, c := range codecs {
		names[i] = c.typeName()
	}
	return names
}

func (l *Library) exportSymbols() map[string]any {
	symbols := make(map[string]any, len(codecs)*5+8)
	for _, c := range codecs {
		c := c
		name := c.typeName()
		symbols[symbolName(name, "from_string")] = l.fromString(c)
		symbols[symbolName(name, "to_string")] = l.toString(c)
		symbols[symbolName(name, "free")] = ValueFreeFunc(func(v Ptr) {
			if v != 0 {
				c.release(l, v)
			}
		})
		symbols[symbolName(name, "equal")] = l.comparison(c, func(r int) bool { return r == 0 })
		symbols[symbolName(name, "less_than")] = l.comparison(c, func(r int) bool { return r < 0 })

		if comp, ok := c.(*composite); ok {
			symbols[symbolName(name, "get_"+comp.first.name)] = comp.getter(l, 0)
			symbols[symbolName(name, "get_"+comp.second.name)] = comp.getter(l, 1)
		}
	}
	return symbols
}

func (l *Library) fromString(c codec) FromStringFunc {
	return func(ectx Ptr, text string) Ptr {
		d, ok := c.parse(text)
		if !ok {
			l.log(LogDebug, CategoryValue, "parse_failed",
				LogPayload{Key: "type", Value: c.typeName()},
				LogPayload{Key: "text", Value: text})
			return 0
		}
		p := c.store(l, d)
		if p == 0 {
			l.raise(ectx, CategorySystem, CodeOutOfMemory, "cannot allocate memory")
		}
		return p
	}
}

func (l *Library) toString(c codec) ToStringFunc {
	return func(ectx Ptr, v Ptr) Ptr {
		d, err := c.load(l, v)
		if err != nil {
			l.raise(ectx, CategoryValue, CodeInvalidValue, err.Error())
			return 0
		}
		s := c.format(d)
		p := l.alloc(uint32(len(s) + 1))
		if p == 0 {
			l.raise(ectx, CategorySystem, CodeOutOfMemory, "cannot allocate memory")
			return 0
		}
		if err := writeCString(l.Memory(), p, s); err != nil {
			l.Free(p)
			l.raise(ectx, CategorySystem, CodeInvalidValue, err.Error())
			return 0
		}
		return p
	}
}

func (l *Library) comparison(c codec, pred func(int) bool) CompareFunc {
	return func(a, b Ptr) bool {
		da, err := c.load(l, a)
		if err != nil {
			return false
		}
		db, err := c.load(l, b)
		if err != nil {
			return false
		}
		return pred(c.compare(da, db))
	}
}
