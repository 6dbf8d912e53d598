package native

import (
	"bytes"
)

const (
	wasmMagic   = 0x6d736100
	wasmVersion = 1

	sectionMemory = 5
	sectionExport = 7

	limitsHasMax = 0x01
	exportMemory = 0x02

	// PageSize is the size of one linear memory page.
	PageSize = 65536

	heapExport = "memory"
)

// memoryModule encodes a module whose only content is one exported memory.
// The heap instantiates it to obtain a linear memory of its own.
func memoryModule(minPages, maxPages uint32) []byte {
	var w bytes.Buffer

	writeU32LE(&w, wasmMagic)
	writeU32LE(&w, wasmVersion)

	var mem bytes.Buffer
	writeLEB128u(&mem, 1)
	mem.WriteByte(limitsHasMax)
	writeLEB128u(&mem, minPages)
	writeLEB128u(&mem, maxPages)
	writeSection(&w, sectionMemory, mem.Bytes())

	var exp bytes.Buffer
	writeLEB128u(&exp, 1)
	writeLEB128u(&exp, uint32(len(heapExport)))
	exp.WriteString(heapExport)
	exp.WriteByte(exportMemory)
	writeLEB128u(&exp, 0)
	writeSection(&w, sectionExport, exp.Bytes())

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	writeLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeU32LE(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 24))
}

// writeLEB128u writes an unsigned LEB128 value
func writeLEB128u(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}
