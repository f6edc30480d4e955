package mxdb

import (
	"unsafe"
)

// A node is one (key, value) slot inside a branch or leaf page: an
// 8-byte header (key size, flags, and either a data size for leaves or a
// child page number for branches) followed by the key bytes and then the
// data bytes, 2-byte aligned. This file only decodes that fixed header
// plus the key/data slices that follow it; page.go/cursor.go own how
// nodes are placed, split, and reordered within a page.

// nodeSize is the width of the fixed node header, in bytes.
const nodeSize = 8

// nodeFlags distinguishes what a node's data slot actually holds.
type nodeFlags uint8

const (
	nodeBig  nodeFlags = 0x01 // data is an overflow-page run
	nodeTree nodeFlags = 0x02 // data is a nested tree record (named DB / DUPSORT root)
	nodeDup  nodeFlags = 0x04 // data is an inline duplicate-sort sub-page
)

// nodeHeader mirrors the 8-byte on-disk node header.
//
//	Offset  Size  Field
//	0       4     dsize/child_pgno (union, by page kind)
//	4       1     flags
//	5       1     extra (reserved)
//	6       2     ksize
//	8       ...   payload (key followed by data)
type nodeHeader struct {
	DataSize uint32 // leaf data length, or a branch entry's child page number
	Flags    nodeFlags
	Extra    uint8
	KeySize  uint16
}

// node is a decoded view over one entry's bytes within a page.
type node struct {
	data   []byte
	offset uint16
}

// mdbxExtraNodeBytes is the width of per-entry bookkeeping some MDBX builds
// keep ahead of each node (txnid stamps, alignment padding); this reader
// doesn't populate it but keeps the constant so page capacity math that
// references it stays self-documenting.
const mdbxExtraNodeBytes = 20

func nodeFromPage(p *page, idx int) *node {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset) >= len(p.Data) {
		return nil
	}
	if int(offset)+nodeSize > len(p.Data) {
		return nil
	}
	return &node{data: p.Data[offset:], offset: offset}
}

func nodeFromBytes(data []byte) *node {
	if len(data) < nodeSize {
		return nil
	}
	return &node{data: data}
}

func (n *node) header() *nodeHeader {
	if len(n.data) < nodeSize {
		return nil
	}
	return (*nodeHeader)(unsafe.Pointer(&n.data[0]))
}

func (n *node) keySize() uint16    { return n.header().KeySize }
func (n *node) dataSize() uint32   { return n.header().DataSize }
func (n *node) childPgno() pgno    { return pgno(n.header().DataSize) }
func (n *node) flags() nodeFlags   { return n.header().Flags }
func (n *node) isBig() bool        { return n.header().Flags&nodeBig != 0 }
func (n *node) isTree() bool       { return n.header().Flags&nodeTree != 0 }
func (n *node) isDup() bool        { return n.header().Flags&nodeDup != 0 }

func (n *node) key() []byte {
	h := n.header()
	if h == nil || len(n.data) < nodeSize+int(h.KeySize) {
		return nil
	}
	return n.data[nodeSize : nodeSize+h.KeySize]
}

// nodeData returns the leaf payload, or the raw 4-byte overflow page number
// for a big node (the caller decides whether to chase it).
func (n *node) nodeData() []byte {
	h := n.header()
	if h == nil {
		return nil
	}
	dataOffset := nodeSize + int(h.KeySize)
	if h.Flags&nodeBig != 0 {
		if len(n.data) < dataOffset+4 {
			return nil
		}
		return n.data[dataOffset : dataOffset+4]
	}
	dataEnd := dataOffset + int(h.DataSize)
	if len(n.data) < dataEnd {
		return nil
	}
	return n.data[dataOffset:dataEnd]
}

func (n *node) overflowPgno() pgno {
	if !n.isBig() {
		return invalidPgno
	}
	h := n.header()
	dataOffset := nodeSize + int(h.KeySize)
	if len(n.data) < dataOffset+4 {
		return invalidPgno
	}
	return pgno(decodeU32(n.data, dataOffset))
}

func (n *node) totalSize() int {
	h := n.header()
	if h == nil {
		return 0
	}
	size := nodeSize + int(h.KeySize)
	if h.Flags&nodeBig != 0 {
		size += 4
	} else {
		size += int(h.DataSize)
	}
	return size
}

// nodeCalcSize is how much page space a node with the given key/data sizes
// will occupy once written; isBig means data collapses to a 4-byte overflow
// pointer instead of its full size.
func nodeCalcSize(keySize int, dataSize int, isBig bool) int {
	size := nodeSize + keySize
	if isBig {
		size += 4
	} else {
		size += dataSize
	}
	return size
}

// nodeMaxKeySize bounds a key so at least two entries plus their separators
// always fit on a branch page of the given size (libmdbx's
// pagesize/2 - NODESIZE - sizeof(indx_t) rule).
func nodeMaxKeySize(pageSize int) int {
	return pageSize/2 - nodeSize - 2
}

// nodeMaxDataSize bounds inline leaf data so two leaf entries still fit.
func nodeMaxDataSize(pageSize int) int {
	return (pageSize-pageHeaderSize-4)/2 - nodeSize - 1
}

// --- shared raw-byte decoding -------------------------------------------
//
// Everything below reads node fields straight out of a page's raw bytes
// without going through nodeFromPage/*node, for callers on a path hot
// enough that a struct allocation or extra bounds check would show up in a
// profile (B+tree search and descent, primarily). They differ only in how
// much the caller has already verified:
//   - ...Direct / ...Raw: checks offsets against len(data) before reading.
//   - ...Unchecked / ...Fast: the caller has already proven idx is valid
//     for this page, so every check here is dropped.
//
// nodeHeaderAt centralizes the one bit of layout knowledge (field order and
// width inside the 8-byte header) so the checked/unchecked entry points
// below don't each re-derive it.

type nodeHeaderView struct {
	dataSize uint32
	flags    nodeFlags
	keySize  uint16
}

func decodeU32(data []byte, at int) uint32 {
	return uint32(data[at]) | uint32(data[at+1])<<8 |
		uint32(data[at+2])<<16 | uint32(data[at+3])<<24
}

func decodeU16(data []byte, at int) uint16 {
	return uint16(data[at]) | uint16(data[at+1])<<8
}

// nodeHeaderAt decodes the 8-byte header at a (already-valid) offset.
func nodeHeaderAt(data []byte, offset int) nodeHeaderView {
	return nodeHeaderView{
		dataSize: decodeU32(data, offset),
		flags:    nodeFlags(data[offset+4]),
		keySize:  decodeU16(data, offset+6),
	}
}

// nodeGetKeyDirect returns entry idx's key, capped to its exact length so
// callers can't grow it via append into neighboring page bytes.
func nodeGetKeyDirect(p *page, idx int) []byte {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset)+nodeSize > len(p.Data) {
		return nil
	}
	keySize := decodeU16(p.Data, int(offset)+6)
	end := int(offset) + nodeSize + int(keySize)
	if end > len(p.Data) {
		return nil
	}
	return p.Data[int(offset)+nodeSize : end : end]
}

// nodeGetDataDirect returns entry idx's data, or nil for a big node (the
// caller must resolve the overflow run itself).
func nodeGetDataDirect(p *page, idx int) []byte {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset)+nodeSize > len(p.Data) {
		return nil
	}
	h := nodeHeaderAt(p.Data, int(offset))
	if h.flags&nodeBig != 0 {
		return nil
	}
	dataStart := int(offset) + nodeSize + int(h.keySize)
	dataEnd := dataStart + int(h.dataSize)
	if dataEnd > len(p.Data) {
		return nil
	}
	return p.Data[dataStart:dataEnd:dataEnd]
}

func nodeGetChildPgnoDirect(p *page, idx int) pgno {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset)+4 > len(p.Data) {
		return invalidPgno
	}
	return pgno(decodeU32(p.Data, int(offset)))
}

func nodeGetFlagsDirect(p *page, idx int) nodeFlags {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset)+5 > len(p.Data) {
		return 0
	}
	return nodeFlags(p.Data[offset+4])
}

func nodeGetOverflowPgnoDirect(p *page, idx int) pgno {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset)+nodeSize > len(p.Data) {
		return invalidPgno
	}
	keySize := decodeU16(p.Data, int(offset)+6)
	pgnoOffset := int(offset) + nodeSize + int(keySize)
	if pgnoOffset+4 > len(p.Data) {
		return invalidPgno
	}
	return pgno(decodeU32(p.Data, pgnoOffset))
}

func nodeGetDataSizeDirect(p *page, idx int) uint32 {
	offset := p.entryOffset(idx)
	if offset == 0 || int(offset)+4 > len(p.Data) {
		return 0
	}
	return decodeU32(p.Data, int(offset))
}

// --- raw byte-slice variants (no *page, for callers already holding Data) --

func nodeGetKeyRaw(data []byte, idx int) []byte {
	offset := pageEntryOffsetDirect(data, idx)
	if offset == 0 || int(offset)+nodeSize > len(data) {
		return nil
	}
	keySize := decodeU16(data, int(offset)+6)
	end := int(offset) + nodeSize + int(keySize)
	if end > len(data) {
		return nil
	}
	return data[int(offset)+nodeSize : end]
}

func nodeGetKeyUnchecked(data []byte, idx int) []byte {
	offset := pageEntryOffsetUnchecked(data, idx)
	keySize := decodeU16(data, int(offset)+6)
	return data[int(offset)+nodeSize : int(offset)+nodeSize+int(keySize)]
}

func nodeGetDataUnchecked(data []byte, idx int) []byte {
	offset := pageEntryOffsetUnchecked(data, idx)
	h := nodeHeaderAt(data, int(offset))
	dataStart := int(offset) + nodeSize + int(h.keySize)
	return data[dataStart : dataStart+int(h.dataSize)]
}

func nodeGetDataRaw(data []byte, idx int) []byte {
	offset := pageEntryOffsetDirect(data, idx)
	if offset == 0 || int(offset)+nodeSize > len(data) {
		return nil
	}
	h := nodeHeaderAt(data, int(offset))
	if h.flags&nodeBig != 0 {
		return nil
	}
	dataStart := int(offset) + nodeSize + int(h.keySize)
	dataEnd := dataStart + int(h.dataSize)
	if dataEnd > len(data) {
		return nil
	}
	return data[dataStart:dataEnd]
}

func nodeGetChildPgnoRaw(data []byte, idx int) pgno {
	offset := pageEntryOffsetDirect(data, idx)
	if offset == 0 || int(offset)+4 > len(data) {
		return invalidPgno
	}
	return pgno(decodeU32(data, int(offset)))
}

func nodeGetChildPgnoUnchecked(data []byte, idx int) pgno {
	offset := pageEntryOffsetUnchecked(data, idx)
	return pgno(decodeU32(data, int(offset)))
}

// nodeGetFirstChildPgno reads entry 0's child pointer without touching the
// pointer-array search path at all — the common case of descending to the
// leftmost child always lands on entry 0.
func nodeGetFirstChildPgno(data []byte) pgno {
	storedOffset := decodeU16(data, pageHeaderSize)
	offset := int(storedOffset) + pageHeaderSize
	return pgno(decodeU32(data, offset))
}

// nodeGetFirstKey reads entry 0's key, the fast path for the first value of
// a duplicate-sort sub-tree leaf.
func nodeGetFirstKey(data []byte) []byte {
	storedOffset := decodeU16(data, pageHeaderSize)
	offset := int(storedOffset) + pageHeaderSize
	keySize := int(decodeU16(data, offset+6))
	return data[offset+nodeSize : offset+nodeSize+keySize]
}

func lastEntryIndex(data []byte) int {
	lower := decodeU16(data, 12)
	return int(lower)>>1 - 1
}

// nodeGetLastChildPgno reads the last entry's child pointer, the fast path
// for descending to the rightmost child.
func nodeGetLastChildPgno(data []byte) pgno {
	lastIdx := lastEntryIndex(data)
	storedOffset := decodeU16(data, pageHeaderSize+lastIdx*2)
	offset := int(storedOffset) + pageHeaderSize
	return pgno(decodeU32(data, offset))
}

// nodeGetLastKey reads the last entry's key, the fast path for the last
// value of a duplicate-sort sub-tree leaf.
func nodeGetLastKey(data []byte) []byte {
	lastIdx := lastEntryIndex(data)
	storedOffset := decodeU16(data, pageHeaderSize+lastIdx*2)
	offset := int(storedOffset) + pageHeaderSize
	keySize := int(decodeU16(data, offset+6))
	return data[offset+nodeSize : offset+nodeSize+keySize]
}

func nodeGetFlagsRaw(data []byte, idx int) nodeFlags {
	offset := pageEntryOffsetDirect(data, idx)
	if offset == 0 || int(offset)+5 > len(data) {
		return 0
	}
	return nodeFlags(data[offset+4])
}

func nodeGetFlagsUnchecked(data []byte, idx int) nodeFlags {
	offset := pageEntryOffsetUnchecked(data, idx)
	return nodeFlags(data[offset+4])
}

// nodeGetNodeDataUnchecked decodes key, flags, and data together in one pass
// so callers that need all three (e.g. dup-sort promotion) don't re-walk
// the header three times.
func nodeGetNodeDataUnchecked(data []byte, idx int) (key []byte, flags nodeFlags, nodeData []byte) {
	offset := pageEntryOffsetUnchecked(data, idx)
	h := nodeHeaderAt(data, int(offset))
	keyStart := int(offset) + nodeSize
	key = data[keyStart : keyStart+int(h.keySize)]
	if h.flags&nodeBig != 0 {
		return key, h.flags, nil
	}
	dataStart := keyStart + int(h.keySize)
	nodeData = data[dataStart : dataStart+int(h.dataSize)]
	return key, h.flags, nodeData
}

func nodeGetOverflowPgnoRaw(data []byte, idx int) pgno {
	offset := pageEntryOffsetDirect(data, idx)
	if offset == 0 || int(offset)+nodeSize > len(data) {
		return invalidPgno
	}
	keySize := decodeU16(data, int(offset)+6)
	pgnoOffset := int(offset) + nodeSize + int(keySize)
	if pgnoOffset+4 > len(data) {
		return invalidPgno
	}
	return pgno(decodeU32(data, pgnoOffset))
}

func nodeGetDataSizeRaw(data []byte, idx int) uint32 {
	offset := pageEntryOffsetDirect(data, idx)
	if offset == 0 || int(offset)+4 > len(data) {
		return 0
	}
	return decodeU32(data, int(offset))
}

// --- page-based fast variants (caller has already bounds-checked idx) ----

func nodeGetKeyFast(p *page, idx int) []byte {
	offset := p.entryOffsetFast(idx)
	keySize := decodeU16(p.Data, int(offset)+6)
	end := int(offset) + nodeSize + int(keySize)
	return p.Data[int(offset)+nodeSize : end : end]
}

func nodeGetDataFast(p *page, idx int) []byte {
	offset := p.entryOffsetFast(idx)
	h := nodeHeaderAt(p.Data, int(offset))
	dataStart := int(offset) + nodeSize + int(h.keySize)
	dataEnd := dataStart + int(h.dataSize)
	return p.Data[dataStart:dataEnd:dataEnd]
}

func nodeGetChildPgnoFast(p *page, idx int) pgno {
	offset := p.entryOffsetFast(idx)
	return pgno(decodeU32(p.Data, int(offset)))
}

func nodeGetFlagsFast(p *page, idx int) nodeFlags {
	offset := p.entryOffsetFast(idx)
	return nodeFlags(p.Data[offset+4])
}

// nodeGetKeyFlagsDataFast decodes key, flags, and data in one pass without
// bounds checking — the fastest path for operations that need all three.
func nodeGetKeyFlagsDataFast(p *page, idx int) (key []byte, flags nodeFlags, data []byte) {
	offset := p.entryOffsetFast(idx)
	h := nodeHeaderAt(p.Data, int(offset))
	keyStart := int(offset) + nodeSize
	key = p.Data[keyStart : keyStart+int(h.keySize)]
	dataStart := keyStart + int(h.keySize)
	data = p.Data[dataStart : dataStart+int(h.dataSize)]
	return key, h.flags, data
}
