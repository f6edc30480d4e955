package mxdb

import (
	"encoding/binary"
	"sync"
	"unsafe"
)

type pgno uint32
type txnid uint64

const (
	pageHeaderSize = 20

	invalidPgno pgno = 0xFFFFFFFF
	maxPgno     pgno = 0x7FFFffff
)

type pageFlags uint16

const (
	pageBranch      pageFlags = 0x01
	pageLeaf        pageFlags = 0x02
	pageLarge       pageFlags = 0x04
	pageMeta        pageFlags = 0x08
	pageLegacyDirty pageFlags = 0x10
	pageBad                   = pageLegacyDirty
	pageDupfix      pageFlags = 0x20
	pageSubP        pageFlags = 0x40 // embedded sub-page for a DUPSORT key
	pageSpilled     pageFlags = 0x2000
	pageLoose       pageFlags = 0x4000 // on the freelist, ready for reuse
	pageFrozen      pageFlags = 0x8000

	pageTypeMask = pageBranch | pageLeaf | pageLarge | pageMeta | pageDupfix | pageSubP
)

// pageHeader is the fixed 20-byte prologue shared by every page type.
// Large (overflow) pages reuse the Lower/Upper halves to hold a 32-bit
// run length instead of the free-space bounds a branch/leaf page keeps
// there — see overflowPages/setOverflowPages.
//
//	Offset  Size  Field
//	0       8     txnid
//	8       2     dupfix_ksize
//	10      2     flags
//	12      2     lower (or pages[0:2] for large pages)
//	14      2     upper (or pages[2:4] for large pages)
//	16      4     pgno
//	20      ...   entries[] (dynamic, indices into node data)
type pageHeader struct {
	Txnid       txnid
	DupfixKsize uint16
	Flags       pageFlags
	Lower       uint16
	Upper       uint16
	PageNo      pgno
}

// page is a thin, allocation-free view over one page-sized byte slice,
// mapped or in a dirty-page buffer.
type page struct {
	Data []byte
}

func (p *page) header() *pageHeader {
	if len(p.Data) < pageHeaderSize {
		return nil
	}
	return (*pageHeader)(unsafe.Pointer(&p.Data[0]))
}

func (p *page) pageNo() pgno {
	return p.header().PageNo
}

func (p *page) pageType() pageFlags {
	return p.header().Flags & pageTypeMask
}

func (p *page) isBranch() bool {
	return p.header().Flags&pageBranch != 0
}

func (p *page) isLeaf() bool {
	return p.header().Flags&pageLeaf != 0
}

func (p *page) isLarge() bool {
	return p.header().Flags&pageLarge != 0
}

func (p *page) isMeta() bool {
	return p.header().Flags&pageMeta != 0
}

func (p *page) isDupfix() bool {
	return p.header().Flags&pageDupfix != 0
}

func (p *page) isSubPage() bool {
	return p.header().Flags&pageSubP != 0
}

// numEntries is page_numkeys(mp): the entry-pointer array is two bytes per
// slot, so Lower (its byte length) halves to a count.
func (p *page) numEntries() int {
	h := p.header()
	if h == nil {
		return 0
	}
	return int(h.Lower) >> 1
}

// entryOffset resolves the entry-pointer slot at idx to an absolute offset
// into Data. Stored pointers are relative to pageHeaderSize rather than
// absolute, so every caller must add it back; that's done once here.
func (p *page) entryOffset(idx int) uint16 {
	if idx < 0 || idx >= p.numEntries() {
		return 0
	}
	offset := pageHeaderSize + idx*2
	return binary.LittleEndian.Uint16(p.Data[offset:]) + uint16(pageHeaderSize)
}

// freeSpace is the gap between the entry-pointer array (growing from
// Lower) and the node data (growing down from Upper).
func (p *page) freeSpace() int {
	h := p.header()
	if h == nil {
		return 0
	}
	return int(h.Upper) - int(h.Lower)
}

// overflowPages returns the number of overflow pages (for large pages).
func (p *page) overflowPages() uint32 {
	if !p.isLarge() {
		return 1
	}
	h := p.header()
	// Pages field is stored in lower/upper as a 32-bit value
	return uint32(h.Lower) | (uint32(h.Upper) << 16)
}

// setOverflowPages sets the overflow page count (for large pages).
func (p *page) setOverflowPages(n uint32) {
	h := p.header()
	h.Lower = uint16(n & 0xFFFF)
	h.Upper = uint16(n >> 16)
}

// overflowRunLength returns the number of pages an overflow value of
// dataSize bytes occupies: the first page holds pageSize-pageHeaderSize
// bytes (it carries the header), every page after that holds a full
// pageSize. allocateOverflow, freeOverflow, updateOverflowInPlace and
// getLargeData all need this count and must agree on it exactly, so it
// lives here once rather than as four independently maintained copies of
// the same arithmetic.
func overflowRunLength(dataSize, pageSize int) int {
	firstPageData := pageSize - pageHeaderSize
	remaining := dataSize - firstPageData
	numPages := 1
	if remaining > 0 {
		numPages += (remaining + pageSize - 1) / pageSize
	}
	return numPages
}

// init stamps a blank page header: txnid 0, an empty entry-pointer array
// (Lower 0), free space running from pageHeaderSize to pageSize (Upper),
// the caller's flags, and pno. Writes the 20 header bytes as two 64-bit
// and one 32-bit store rather than field by field, since this runs once
// per freshly allocated page and the struct-cast path it replaces was a
// measurable fraction of allocation cost under write-heavy load.
func (p *page) init(pno pgno, flags pageFlags, pageSize uint16) {
	d := p.Data
	_ = d[19] // hoist the bounds check for every access below

	wirePutU64(d[0:8], 0) // txnid

	upper := pageSize - pageHeaderSize
	val := uint64(flags)<<16 | uint64(upper)<<48 // dupfix_ksize=0, flags, lower=0, upper
	wirePutU64(d[8:16], val)

	wirePutU32(d[16:20], uint32(pno))
}

// validate rejects a page whose header flags carry unknown bits, or
// whose free-space bounds overlap or fall outside the page. Overflow
// pages reuse Lower/Upper for a run-length and skip the bounds check.
func (p *page) validate(pageSize uint) error {
	if len(p.Data) < pageHeaderSize {
		return errPageTooSmall
	}
	h := p.header()

	if h.Flags&^(pageTypeMask|pageSpilled|pageLoose|pageFrozen|pageLegacyDirty) != 0 {
		return errPageInvalidFlags
	}

	if !p.isLarge() {
		if h.Upper+pageHeaderSize > uint16(pageSize) {
			return errPageInvalidUpper
		}
		if h.Lower > h.Upper {
			return errPageInvalidBounds
		}
	}

	return nil
}

// Errors for page validation
var (
	errPageTooSmall      = &pageError{"page too small"}
	errPageInvalidFlags  = &pageError{"invalid page flags"}
	errPageInvalidLower  = &pageError{"invalid lower bound"}
	errPageInvalidUpper  = &pageError{"invalid upper bound"}
	errPageInvalidBounds = &pageError{"lower > upper"}
)

type pageError struct {
	msg string
}

func (e *pageError) Error() string {
	return "page: " + e.msg
}

// ============== Allocation-free direct access functions ==============
// The hot paths in cursor.go walk pages without ever building a *page, to
// avoid the pointer indirection; these read the same offsets header()
// would, just off a bare []byte. flagsAt/lowerAt centralize the two raw
// reads so the Direct/Fast variants below are bounds-checking wrappers
// around one decode, not four independent copies of it.

func flagsAt(data []byte) pageFlags {
	return pageFlags(uint16(data[10]) | uint16(data[11])<<8)
}

func lowerAt(data []byte) uint16 {
	return uint16(data[12]) | uint16(data[13])<<8
}

// entryPtrAt reads the raw (pageHeaderSize-relative) entry pointer stored
// at slot idx and rebases it to an absolute offset into data. Caller must
// have already verified idx is in range.
func entryPtrAt(data []byte, idx int) uint16 {
	off := pageHeaderSize + idx*2
	return (uint16(data[off]) | uint16(data[off+1])<<8) + pageHeaderSize
}

// pageFlagsDirect returns the page flags from raw page data.
func pageFlagsDirect(data []byte) pageFlags {
	if len(data) < pageHeaderSize {
		return 0
	}
	return flagsAt(data)
}

func pageIsLeafDirect(data []byte) bool {
	return pageFlagsDirect(data)&pageLeaf != 0
}

func pageIsBranchDirect(data []byte) bool {
	return pageFlagsDirect(data)&pageBranch != 0
}

// pageNumEntriesDirect is page_numkeys(mp) computed off raw bytes.
func pageNumEntriesDirect(data []byte) int {
	if len(data) < pageHeaderSize {
		return 0
	}
	return int(lowerAt(data)) >> 1
}

func pageEntryOffsetDirect(data []byte, idx int) uint16 {
	if idx < 0 || idx >= pageNumEntriesDirect(data) {
		return 0
	}
	return pageEntryOffsetUnchecked(data, idx)
}

// pageEntryOffsetUnchecked skips the bounds check pageEntryOffsetDirect
// does; caller must already know 0 <= idx < numEntries.
func pageEntryOffsetUnchecked(data []byte, idx int) uint16 {
	return entryPtrAt(data, idx)
}

// entryOffsetFast, isBranchFast, numEntriesFast and isLeafFast are the
// *page-method forms of the Direct family above, for call sites that
// already hold a *page and have ruled out the nil/short-data case.
func (p *page) entryOffsetFast(idx int) uint16 {
	return pageEntryOffsetUnchecked(p.Data, idx)
}

func (p *page) isBranchFast() bool {
	return flagsAt(p.Data)&pageBranch != 0
}

func (p *page) numEntriesFast() int {
	return int(lowerAt(p.Data)) >> 1
}

func (p *page) isLeafFast() bool {
	return flagsAt(p.Data)&pageLeaf != 0
}

// ============== Page modification methods ==============

// insertEntry splits a node (header+key+value, already encoded) into the
// page at idx, shifting later entry pointers up by one slot. Reports
// false if the page has no room even after a compact pass.
func (p *page) insertEntry(idx int, nodeData []byte) bool {
	return p.insertEntryWithBuf(idx, nodeData, nil)
}

// insertEntryWithBuf is insertEntry with a caller-supplied scratch buffer
// passed through to compactWithBuf, so a hot mutation loop can reuse one
// buffer across many inserts instead of round-tripping compactBufferPool.
func (p *page) insertEntryWithBuf(idx int, nodeData []byte, scratchBuf []byte) bool {
	h := p.header()
	numEntries := p.numEntries()

	// Check bounds
	if idx < 0 || idx > numEntries {
		return false
	}

	nodeSize := len(nodeData)
	// Need 2 bytes for entry index + nodeSize for node data
	requiredSpace := 2 + nodeSize
	if p.freeSpace() < requiredSpace {
		// Try compacting to reclaim space from holes
		reclaimed := p.compactWithBuf(scratchBuf)
		if reclaimed == 0 || p.freeSpace() < requiredSpace {
			return false
		}
	}

	// Allocate space for node data at upper end
	// In alternate format: upper is relative to pageHeaderSize
	// actual position = upper + pageHeaderSize
	// new actual position = actual position - nodeSize
	// new upper = new actual position - pageHeaderSize = upper - nodeSize
	newUpper := h.Upper - uint16(nodeSize)
	h.Upper = newUpper

	// Copy node data to the allocated space (actual position = upper + pageHeaderSize)
	actualPosition := newUpper + pageHeaderSize
	copy(p.Data[actualPosition:], nodeData)

	// Shift existing entry indices to make room
	entriesStart := pageHeaderSize
	if idx < numEntries {
		// Move entries from idx onwards by 2 bytes
		src := entriesStart + idx*2
		dst := src + 2
		moveSize := (numEntries - idx) * 2
		copy(p.Data[dst:], p.Data[src:src+moveSize])
	}

	// Write new entry index (alternate format: same as upper value = offset relative to pageHeaderSize)
	entryOffset := entriesStart + idx*2
	wirePutU16(p.Data[entryOffset:], newUpper)

	// Update lower bound (grows by 2 for new entry index)
	h.Lower += 2

	return true
}

// removeEntry drops the entry pointer at idx, shifting later pointers
// down. The node bytes it pointed at become a hole; compact reclaims
// holes, this does not.
func (p *page) removeEntry(idx int) bool {
	h := p.header()
	numEntries := p.numEntries()

	// Check bounds
	if idx < 0 || idx >= numEntries {
		return false
	}

	// Shift entry indices
	entriesStart := pageHeaderSize
	if idx < numEntries-1 {
		src := entriesStart + (idx+1)*2
		dst := entriesStart + idx*2
		moveSize := (numEntries - 1 - idx) * 2
		copy(p.Data[dst:], p.Data[src:src+moveSize])
	}

	// Update lower bound (shrinks by 2)
	h.Lower -= 2

	return true
}

// removeEntriesFrom truncates the entry-pointer array to [0, startIdx),
// the bulk-remove a page split uses to hand everything past the split
// point to the new sibling without removing one entry at a time. Leaves
// the now-orphaned node bytes as holes.
func (p *page) removeEntriesFrom(startIdx int) {
	h := p.header()
	numEntries := p.numEntries()
	if startIdx < 0 || startIdx >= numEntries {
		return
	}
	entriesToRemove := numEntries - startIdx
	h.Lower -= uint16(entriesToRemove * 2)
}

// compact repacks node data to eliminate holes left by removeEntry and
// friends, reporting how many bytes were reclaimed.
func (p *page) compact() int {
	return p.compactWithBuf(nil)
}

// compactWithBuf is compact, preferring scratchBuf for the temporary copy
// over compactBufferPool when it's large enough — lets a caller doing
// many compactions in a row (insertEntryWithBuf's retry path) supply its
// own buffer instead of round-tripping the pool each time.
func (p *page) compactWithBuf(scratchBuf []byte) int {
	h := p.header()
	numEntries := p.numEntriesFast()
	pageSize := uint16(len(p.Data))

	if numEntries == 0 {
		oldUpper := h.Upper
		h.Upper = pageSize - pageHeaderSize
		return int(h.Upper - oldUpper)
	}

	// Entry counts rarely exceed a couple hundred on a 4KB page; the
	// stack array covers that without forcing an allocation per call.
	var sizesBuf [256]uint16
	var sizes []uint16
	if numEntries <= 256 {
		sizes = sizesBuf[:numEntries]
	} else {
		sizes = make([]uint16, numEntries)
	}

	totalSize := uint16(0)
	for i := 0; i < numEntries; i++ {
		sizes[i] = uint16(p.calcNodeSizeFast(i))
		totalSize += sizes[i]
	}

	expectedUpper := pageSize - pageHeaderSize - totalSize
	if h.Upper == expectedUpper {
		return 0
	}

	// The gap between the entry-pointer array's end and the data area's
	// start is dead space right now; borrow it as scratch before anything
	// else, since it costs nothing.
	entryPointersEnd := uint16(pageHeaderSize + numEntries*2)
	dataStart := h.Upper + pageHeaderSize

	var tempBuf []byte
	var needReturn bool
	gapSize := int(dataStart - entryPointersEnd)
	if gapSize >= int(totalSize) {
		tempBuf = p.Data[entryPointersEnd:dataStart]
	} else if len(scratchBuf) >= int(totalSize) {
		tempBuf = scratchBuf[:totalSize]
	} else {
		tempBuf = getCompactBuffer(int(totalSize))
		needReturn = true
	}

	tempPos := uint16(0)
	for i := 0; i < numEntries; i++ {
		srcOffset := p.entryOffsetFast(i)
		copy(tempBuf[tempPos:tempPos+sizes[i]], p.Data[srcOffset:srcOffset+sizes[i]])
		tempPos += sizes[i]
	}

	// Write everything back contiguous from the end of the page, in the
	// same order, and repoint each entry at its new home.
	writePos := pageSize
	tempPos = 0
	for i := 0; i < numEntries; i++ {
		writePos -= sizes[i]
		copy(p.Data[writePos:writePos+sizes[i]], tempBuf[tempPos:tempPos+sizes[i]])
		tempPos += sizes[i]

		entryPtrOffset := pageHeaderSize + i*2
		wirePutU16(p.Data[entryPtrOffset:], writePos-pageHeaderSize)
	}

	if needReturn {
		returnCompactBuffer(tempBuf)
	}

	oldUpper := h.Upper
	h.Upper = writePos - pageHeaderSize

	return int(h.Upper - oldUpper)
}

// compactBufferPool backs getCompactBuffer/returnCompactBuffer for the
// case compactWithBuf can't use either the in-page gap or a caller buffer.
var compactBufferPool = sync.Pool{
	New: func() any {
		return make([]byte, 4096)
	},
}

func getCompactBuffer(size int) []byte {
	buf := compactBufferPool.Get().([]byte)
	if len(buf) < size {
		return make([]byte, size)
	}
	return buf[:size]
}

func returnCompactBuffer(buf []byte) {
	if cap(buf) >= 4096 {
		compactBufferPool.Put(buf[:cap(buf)])
	}
}

// updateEntry overwrites the node at idx with nodeData, writing in place
// when it still fits and relocating to the upper end of the page
// otherwise. Reports false if there's no room for a relocation either.
func (p *page) updateEntry(idx int, nodeData []byte) bool {
	h := p.header()
	numEntries := p.numEntries()

	if idx < 0 || idx >= numEntries {
		return false
	}

	oldSize := p.calcNodeSize(idx)
	newSize := len(nodeData)

	// If new node fits in old space, write in place
	if newSize <= oldSize {
		offset := p.entryOffset(idx)
		copy(p.Data[offset:], nodeData)
		return true
	}

	// Need more space - allocate at end
	extraSpace := newSize - oldSize
	if p.freeSpace() < extraSpace {
		return false
	}

	// Check if we have enough contiguous space at Upper
	// Must ensure Upper - newSize >= Lower to avoid overwriting entry pointers
	// Use int to avoid underflow
	newUpperInt := int(h.Upper) - newSize
	if newUpperInt < int(h.Lower) {
		// Not enough space - would overwrite entry pointers
		return false
	}
	newUpper := uint16(newUpperInt)

	// Allocate new space (in alternate format, upper is relative to pageHeaderSize)
	h.Upper = newUpper
	actualPosition := newUpper + pageHeaderSize
	copy(p.Data[actualPosition:], nodeData)

	// Update entry index to point to new location (alternate format: same as upper value)
	entryOffset := pageHeaderSize + idx*2
	wirePutU16(p.Data[entryOffset:], newUpper)

	// Old space is now a hole - will be reclaimed later

	return true
}

func (p *page) calcNodeSize(idx int) int {
	numEntries := p.numEntriesFast()
	if idx < 0 || idx >= numEntries {
		return 0
	}
	return p.calcNodeSizeFast(idx)
}

// calcNodeSizeFast decodes just enough of the node header at idx (dsize,
// flags, ksize) to compute its on-page footprint, without materializing a
// node struct. Branch nodes store a child pgno rather than a data size in
// the dsize field and need the 8-byte header plus key only; big leaf nodes
// store a 4-byte overflow pgno in place of inline data, so neither case
// counts dsize bytes of payload.
func (p *page) calcNodeSizeFast(idx int) int {
	nodeOffset := p.entryOffsetFast(idx)

	dsize := binary.LittleEndian.Uint32(p.Data[nodeOffset:])
	flags := p.Data[nodeOffset+4]
	ksize := binary.LittleEndian.Uint16(p.Data[nodeOffset+6:])

	size := 8 + int(ksize)

	if p.isBranchFast() {
		return size
	}

	if flags&0x01 != 0 {
		size += 4 // overflow pgno, not inline value bytes
	} else {
		size += int(dsize)
	}

	return size
}

// splitPoint picks where to divide this page's entries between the
// existing page and a new sibling when inserting newNodeSize bytes at
// insertIdx would otherwise overflow it. Returns an index k such that
// entries [0,k) stay here and [k,numEntries) move to the sibling, with
// the new node folded into whichever side insertIdx lands on. Single
// pass, no heap allocation: a page rarely holds enough entries for the
// O(n) re-scan per candidate to matter.
func (p *page) splitPoint(newNodeSize int, insertIdx int) int {
	numEntries := p.numEntriesFast()
	if numEntries == 0 {
		return 0
	}

	pageSize := len(p.Data)
	maxSpace := pageSize - pageHeaderSize

	totalExisting := 0
	for i := 0; i < numEntries; i++ {
		totalExisting += p.calcNodeSizeFast(i)
	}

	// Appending at the tail is the common case (sequential insert load);
	// try keeping every existing entry on this page and putting only the
	// new one on the sibling before falling back to a real search.
	if insertIdx >= numEntries {
		leftNeeded := numEntries*2 + totalExisting
		rightNeeded := 2 + newNodeSize
		if leftNeeded <= maxSpace && rightNeeded <= maxSpace {
			return numEntries
		}
	}

	// splitIdx == 0 sends everything (plus the new node) to the sibling;
	// splitIdx == numEntries keeps everything here and sends only the new
	// node over. Both ends of that range are valid candidates.
	isValidSplit := func(splitIdx int) bool {
		if splitIdx < 0 || splitIdx > numEntries {
			return false
		}

		// Calculate left side data size: entries [0, splitIdx)
		leftDataSize := 0
		for i := 0; i < splitIdx; i++ {
			leftDataSize += p.calcNodeSizeFast(i)
		}

		// Right side data size is totalExisting - leftDataSize
		rightDataSize := totalExisting - leftDataSize

		// Entry counts
		leftEntries := splitIdx
		rightEntries := numEntries - splitIdx

		// Add new node to appropriate side
		if insertIdx < splitIdx {
			leftEntries++
			leftDataSize += newNodeSize
		} else {
			rightEntries++
			rightDataSize += newNodeSize
		}

		// Both pages must have at least one entry after the split+insert
		if leftEntries == 0 || rightEntries == 0 {
			return false
		}

		// Check if both pages fit
		leftNeeded := leftEntries*2 + leftDataSize
		rightNeeded := rightEntries*2 + rightDataSize

		return leftNeeded <= maxSpace && rightNeeded <= maxSpace
	}

	mid := numEntries / 2
	if mid == 0 {
		mid = 1
	}

	if isValidSplit(mid) {
		return mid
	}

	// Walk outward from the midpoint, checking the side the new node
	// would land on first — that's the side more likely to need shrinking.
	for delta := 1; delta <= numEntries; delta++ {
		if insertIdx < mid {
			if mid-delta >= 0 && isValidSplit(mid-delta) {
				return mid - delta
			}
			if mid+delta <= numEntries && isValidSplit(mid+delta) {
				return mid + delta
			}
		} else {
			if mid+delta <= numEntries && isValidSplit(mid+delta) {
				return mid + delta
			}
			if mid-delta >= 0 && isValidSplit(mid-delta) {
				return mid - delta
			}
		}
	}

	return mid // no split point satisfies both sides; let the caller overflow and retry
}

// compactTo rebuilds p's entries, in order and without holes, into dst —
// used when shrinking a page's live set onto a smaller or freshly
// allocated destination rather than compacting in place.
func (p *page) compactTo(dst *page, pageSize uint16) {
	h := p.header()
	dstH := dst.header()

	dstH.PageNo = h.PageNo
	dstH.Flags = h.Flags
	dstH.Txnid = h.Txnid
	dstH.DupfixKsize = h.DupfixKsize
	dstH.Lower = 0
	dstH.Upper = pageSize - pageHeaderSize

	numEntries := p.numEntries()
	for i := 0; i < numEntries; i++ {
		offset := p.entryOffset(i)
		nodeSize := p.calcNodeSize(i)
		if nodeSize > 0 && int(offset)+nodeSize <= len(p.Data) {
			dst.insertEntry(i, p.Data[offset:offset+uint16(nodeSize)])
		}
	}
}
