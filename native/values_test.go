package native

import (
	"testing"
)

type valueOps struct {
	parse  FromStringFunc
	format ToStringFunc
	free   ValueFreeFunc
	equal  CompareFunc
	less   CompareFunc
}

func opsFor(t *testing.T, lib *Library, typeName string) valueOps {
	t.Helper()
	return valueOps{
		parse:  symbol[FromStringFunc](t, lib, symbolName(typeName, "from_string")),
		format: symbol[ToStringFunc](t, lib, symbolName(typeName, "to_string")),
		free:   symbol[ValueFreeFunc](t, lib, symbolName(typeName, "free")),
		equal:  symbol[CompareFunc](t, lib, symbolName(typeName, "equal")),
		less:   symbol[CompareFunc](t, lib, symbolName(typeName, "less_than")),
	}
}

func formatValue(t *testing.T, lib *Library, ops valueOps, ectx, v Ptr) string {
	t.Helper()
	p := ops.format(ectx, v)
	if p == 0 {
		t.Fatalf("to_string returned NULL")
	}
	s, err := ReadCString(lib.Memory(), p)
	if err != nil {
		t.Fatal(err)
	}
	lib.Free(p)
	return s
}

func TestValues_RoundTrip(t *testing.T) {
	lib := openTestLibrary(t)
	ectx := lib.AcquireErrorContext()
	defer lib.ReleaseErrorContext(ectx)

	tests := []struct {
		typeName string
		input    string
		want     string
	}{
		{IPv4Address, "9.0.0.1", "9.0.0.1"},
		{IPv6Address, "FE80:0000::0ABC", "fe80::abc"},
		{IPv6Address, "::ffff:10.0.0.1", "::ffff:10.0.0.1"},
		{Hostname, "VPN.Example.ORG", "vpn.example.org"},
		{Hostname, "bücher.example", "xn--bcher-kva.example"},
		{Hostname, "Example.COM.", "example.com"},
		{PortNumber, "12000", "12000"},
		{PortNumber, "080", "80"},
		{IPv4PrefixLength, "24", "24"},
		{IPv6PrefixLength, "128", "128"},
		{IPv4Endpoint, "127.0.0.1:12000", "127.0.0.1:12000"},
		{IPv6Endpoint, "[fe80::0abc]:12000", "[fe80::abc]:12000"},
		{HostnameEndpoint, "Gateway.local:443", "gateway.local:443"},
		{HostnameEndpoint, "gateway.local.:443", "gateway.local:443"},
		{IPv4Route, "9.0.0.0/24", "9.0.0.0/24"},
		{IPv4Route, "9.0.0.1/24", "9.0.0.1/24"},
		{IPv6Route, "fe80::/10", "fe80::/10"},
	}

	for _, tt := range tests {
		t.Run(tt.typeName+"/"+tt.input, func(t *testing.T) {
			ops := opsFor(t, lib, tt.typeName)
			v := ops.parse(ectx, tt.input)
			if v == 0 {
				t.Fatalf("from_string(%q) returned NULL", tt.input)
			}
			defer ops.free(v)

			if got := formatValue(t, lib, ops, ectx, v); got != tt.want {
				t.Errorf("to_string = %q, want %q", got, tt.want)
			}
			if _, ok := lib.ErrorContextCategory(ectx); ok {
				t.Error("successful round trip recorded an error")
			}
		})
	}

	if st := lib.Heap().Stats(); st.LiveBlocks != 1 {
		t.Errorf("LiveBlocks = %d, want only the error context", st.LiveBlocks)
	}
}

func TestValues_Rejection(t *testing.T) {
	lib := openTestLibrary(t)
	ectx := lib.AcquireErrorContext()
	defer lib.ReleaseErrorContext(ectx)

	common := []string{"", "incorrect value"}
	extra := map[string][]string{
		IPv4Address:      {"127.1", " 127.0.0.1", "127.0.0.1 ", "256.0.0.1", "::1"},
		IPv6Address:      {"fe80::1%eth0", "1.2.3.4", "fe80:::1"},
		Hostname:         {"bad..name", "-lead.example", "a.b c", ".", "example.."},
		PortNumber:       {"65536", "-1", "+80", "0x50", " 80"},
		IPv4PrefixLength: {"33"},
		IPv6PrefixLength: {"129"},
		IPv4Endpoint:     {"127.0.0.1", "127.0.0.1:", "127.1:80", "127.0.0.1:70000"},
		IPv6Endpoint:     {"fe80::1:80", "[fe80::1]", "[fe80::1]:"},
		HostnameEndpoint: {"host", "host name:80"},
		IPv4Route:        {"9.0.0.0", "9.0.0.0/33", "9.0.0.0/"},
		IPv6Route:        {"fe80::", "fe80::/129", "[fe80::]/10"},
	}

	for _, typeName := range TypeNames() {
		ops := opsFor(t, lib, typeName)
		for _, input := range append(common, extra[typeName]...) {
			if v := ops.parse(ectx, input); v != 0 {
				ops.free(v)
				t.Errorf("%s.from_string(%q) accepted", typeName, input)
			}
		}
	}

	if _, ok := lib.ErrorContextCategory(ectx); ok {
		t.Error("parse failure should not record an error")
	}
}

func TestValues_Compare(t *testing.T) {
	lib := openTestLibrary(t)
	ectx := lib.AcquireErrorContext()
	defer lib.ReleaseErrorContext(ectx)

	tests := []struct {
		typeName string
		a, b     string
		less     bool
		equal    bool
	}{
		{IPv4Address, "10.0.0.1", "10.0.0.2", true, false},
		{IPv4Address, "10.0.0.1", "10.0.0.1", false, true},
		{IPv6Address, "::1", "0:0:0:0:0:0:0:1", false, true},
		{Hostname, "alpha.example", "beta.example", true, false},
		{Hostname, "example.com.", "example.com", false, true},
		{PortNumber, "9", "10", true, false},
		{IPv4Endpoint, "10.0.0.1:80", "10.0.0.1:443", true, false},
		{IPv4Endpoint, "10.0.0.2:80", "10.0.0.1:443", false, false},
		{IPv6Route, "fe80::/10", "fe80::/64", true, false},
	}

	for _, tt := range tests {
		ops := opsFor(t, lib, tt.typeName)
		a := ops.parse(ectx, tt.a)
		b := ops.parse(ectx, tt.b)
		if a == 0 || b == 0 {
			t.Fatalf("parse %q or %q failed", tt.a, tt.b)
		}
		if got := ops.less(a, b); got != tt.less {
			t.Errorf("%s: %s < %s = %v", tt.typeName, tt.a, tt.b, got)
		}
		if got := ops.equal(a, b); got != tt.equal {
			t.Errorf("%s: %s == %s = %v", tt.typeName, tt.a, tt.b, got)
		}
		if ops.less(a, b) && ops.less(b, a) {
			t.Errorf("%s: both orders hold", tt.typeName)
		}
		ops.free(a)
		ops.free(b)
	}
}

func TestValues_Getters(t *testing.T) {
	lib := openTestLibrary(t)
	ectx := lib.AcquireErrorContext()
	defer lib.ReleaseErrorContext(ectx)

	ep := opsFor(t, lib, IPv6Endpoint)
	addr := opsFor(t, lib, IPv6Address)
	port := opsFor(t, lib, PortNumber)
	getAddr := symbol[GetterFunc](t, lib, "freelan_IPv6Endpoint_get_IPv6Address")
	getPort := symbol[GetterFunc](t, lib, "freelan_IPv6Endpoint_get_PortNumber")

	v := ep.parse(ectx, "[2001:db8::1]:12000")
	a := getAddr(v)
	p := getPort(v)
	if a == 0 || p == 0 {
		t.Fatal("getter returned NULL")
	}

	// parts are copies: freeing them leaves the endpoint intact
	if got := formatValue(t, lib, addr, ectx, a); got != "2001:db8::1" {
		t.Errorf("address = %q", got)
	}
	if got := formatValue(t, lib, port, ectx, p); got != "12000" {
		t.Errorf("port = %q", got)
	}
	addr.free(a)
	port.free(p)
	if got := formatValue(t, lib, ep, ectx, v); got != "[2001:db8::1]:12000" {
		t.Errorf("endpoint = %q", got)
	}
	ep.free(v)

	if st := lib.Heap().Stats(); st.LiveBlocks != 1 {
		t.Errorf("LiveBlocks = %d, want only the error context", st.LiveBlocks)
	}
}

func TestValues_AllocationFailure(t *testing.T) {
	lib := openTestLibrary(t)
	ectx := lib.AcquireErrorContext()
	defer lib.ReleaseErrorContext(ectx)

	ops := opsFor(t, lib, IPv4Route)
	v := ops.parse(ectx, "10.0.0.0/8")

	lib.RegisterMemoryFunctions(MemoryFunctions{
		Malloc: func(uint32) Ptr { return 0 },
	})

	if p := ops.format(ectx, v); p != 0 {
		t.Errorf("to_string = %s, want NULL", p)
	}
	cat, _ := lib.ErrorContextCategory(ectx)
	if cat != CategorySystem || lib.ErrorContextCode(ectx) != CodeOutOfMemory {
		t.Errorf("error = %s/%d", cat, lib.ErrorContextCode(ectx))
	}

	lib.ErrorContextReset(ectx)
	if p := ops.parse(ectx, "10.0.0.0/8"); p != 0 {
		t.Errorf("from_string = %s, want NULL", p)
	}
	if cat, _ := lib.ErrorContextCategory(ectx); cat != CategorySystem {
		t.Errorf("category = %q", cat)
	}

	lib.RegisterMemoryFunctions(MemoryFunctions{})
	ops.free(v)
	if st := lib.Heap().Stats(); st.LiveBlocks != 1 {
		t.Errorf("LiveBlocks = %d: failed construction leaked", st.LiveBlocks)
	}
}
