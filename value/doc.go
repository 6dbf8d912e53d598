// Package value wraps the native library's typed values.
//
// Each native type has one Go type, an instantiation of Value over a kind
// tag, so comparing values of different types does not compile:
//
//	addr, err := value.Parse[value.IPv4](reg, "10.0.0.1")
//	if err != nil {
//		return err
//	}
//	defer addr.Close()
//
//	ep, _ := value.Parse[value.EndpointOf[value.IPv4]](reg, "10.0.0.1:12000")
//	defer ep.Close()
//	port, _ := value.EndpointPort(ep) // a new, independently owned value
//	defer port.Close()
//
// A Value owns its native handle and must be closed. Formatting copies the
// native string and frees it before returning.
package value
