//go:build amd64 || 386 || arm64 || arm || riscv64 || mips64le || mipsle || ppc64le || wasm

package mxdb

import "unsafe"

// Wire codec for the little-endian, tightly packed on-disk layout. Page
// headers, node headers, and meta fields are all fixed-width
// little-endian integers; on a native little-endian host the wire bytes
// and the in-memory representation are identical, so these reduce to a
// raw pointer reinterpretation instead of a byte-by-byte shuffle.

//go:nosplit
func wirePutU64(dst []byte, v uint64) {
	*(*uint64)(unsafe.Pointer(&dst[0])) = v
}

//go:nosplit
func wirePutU32(dst []byte, v uint32) {
	*(*uint32)(unsafe.Pointer(&dst[0])) = v
}

//go:nosplit
func wirePutU16(dst []byte, v uint16) {
	*(*uint16)(unsafe.Pointer(&dst[0])) = v
}

//go:nosplit
func wireGetU64(src []byte) uint64 {
	return *(*uint64)(unsafe.Pointer(&src[0]))
}

//go:nosplit
func wireGetU32(src []byte) uint32 {
	return *(*uint32)(unsafe.Pointer(&src[0]))
}

//go:nosplit
func wireGetU16(src []byte) uint16 {
	return *(*uint16)(unsafe.Pointer(&src[0]))
}
