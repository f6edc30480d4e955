//go:build !amd64 && !386 && !arm64 && !arm && !riscv64 && !mips64le && !mipsle && !ppc64le && !wasm

package mxdb

import "encoding/binary"

// Same wire codec as endian_le.go, but for hosts whose native word order
// doesn't match the little-endian on-disk format: every access goes through
// encoding/binary instead of a pointer cast, at the cost of a real byte swap
// on each call.

//go:nosplit
func wirePutU64(dst []byte, v uint64) {
	binary.LittleEndian.PutUint64(dst, v)
}

//go:nosplit
func wirePutU32(dst []byte, v uint32) {
	binary.LittleEndian.PutUint32(dst, v)
}

//go:nosplit
func wirePutU16(dst []byte, v uint16) {
	binary.LittleEndian.PutUint16(dst, v)
}

//go:nosplit
func wireGetU64(src []byte) uint64 {
	return binary.LittleEndian.Uint64(src)
}

//go:nosplit
func wireGetU32(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}

//go:nosplit
func wireGetU16(src []byte) uint16 {
	return binary.LittleEndian.Uint16(src)
}
