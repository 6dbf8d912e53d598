package native

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Memory gives byte-level access to the native heap.
type Memory interface {
	// Read returns a copy of length bytes at offset.
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	// Size returns the current size of the memory in bytes.
	Size() uint32
}

// WrapMemory wraps a wazero api.Memory to implement Memory.
func WrapMemory(mem api.Memory) Memory {
	if mem == nil {
		return nil
	}
	return &memoryWrapper{mem: mem}
}

type memoryWrapper struct {
	mem api.Memory
}

func (m *memoryWrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *memoryWrapper) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *memoryWrapper) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *memoryWrapper) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memoryWrapper) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memoryWrapper) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *memoryWrapper) Size() uint32 {
	return m.mem.Size()
}

// ReadCString reads the NUL-terminated string starting at ptr.
func ReadCString(mem Memory, ptr Ptr) (string, error) {
	if ptr == 0 {
		return "", fmt.Errorf("read string: null pointer")
	}

	const chunk = 64
	var out []byte
	offset := uint32(ptr)
	size := mem.Size()
	for offset < size {
		n := uint32(chunk)
		if size-offset < n {
			n = size - offset
		}
		data, err := mem.Read(offset, n)
		if err != nil {
			return "", err
		}
		for i, c := range data {
			if c == 0 {
				return string(append(out, data[:i]...)), nil
			}
		}
		out = append(out, data...)
		offset += n
	}
	return "", fmt.Errorf("read string at 0x%08x: missing terminator", uint32(ptr))
}

// writeCString writes s followed by a NUL byte at ptr.
func writeCString(mem Memory, ptr Ptr, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return mem.Write(uint32(ptr), buf)
}
