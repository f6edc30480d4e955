package mxdb

import (
	"bytes"
	"encoding/binary"
)

// This file holds the node-key fast paths Cursor.searchPageFastPath reaches
// for when a DBI's key comparator is the plain byte-order default. The
// previous split between an "amd64 assembly" build and a "portable" build
// declared //go:noescape stubs with no matching assembly source — a build
// for amd64 would have failed at link time, and the non-amd64 fallbacks
// always returned a sentinel telling the caller to skip the fast path
// entirely, so the fast path never actually ran on any platform. This
// replaces both with one pure-Go implementation that runs everywhere and
// is exercised on every architecture, rather than a per-arch split whose
// "fast" half never linked.

// faultInPage touches the first byte of a page's backing bytes so the OS
// services any mmap page fault before the caller's binary search begins,
// instead of stalling mid-comparison.
func faultInPage(data []byte) {
	if len(data) > 0 {
		_ = data[0]
	}
}

// nodeKeyOffset resolves the node header offset for entry idx in a page's
// raw bytes, following the pointer array at the fixed 20-byte page header.
func nodeKeyOffset(pageData []byte, idx int) int {
	offsetPos := 20 + idx*2
	stored := uint16(pageData[offsetPos]) | uint16(pageData[offsetPos+1])<<8
	return int(stored) + 20
}

// nodeKeyU64 reads entry idx's key as a big-endian uint64, reporting false
// if the key isn't exactly 8 bytes wide (the only width this fast path
// handles; everything else falls back to compareNodeKey/bytes.Compare).
func nodeKeyU64(pageData []byte, idx int) (uint64, bool) {
	offset := nodeKeyOffset(pageData, idx)
	keySize := int(uint16(pageData[offset+6]) | uint16(pageData[offset+7])<<8)
	if keySize != 8 {
		return 0, false
	}
	keyStart := offset + 8 // node header is 8 bytes wide
	return binary.BigEndian.Uint64(pageData[keyStart : keyStart+8]), true
}

// compareNodeKey compares searchKey against entry idx's key, extracting the
// key bytes directly from the page rather than materializing a node struct
// first. Returns -1/0/1 the way bytes.Compare does.
func compareNodeKey(pageData []byte, idx int, searchKey []byte) int {
	offset := nodeKeyOffset(pageData, idx)
	keySize := int(uint16(pageData[offset+6]) | uint16(pageData[offset+7])<<8)
	keyStart := offset + 8
	nodeKey := pageData[keyStart : keyStart+keySize]
	return bytes.Compare(searchKey, nodeKey)
}

// searchLeafU64 binary-searches a leaf page of 8-byte keys for key, mirroring
// the plain-leaf branch of Cursor.searchPage. Returns -1 if entry n-1's key
// isn't 8 bytes wide, telling the caller to fall back to compareNodeKey.
func searchLeafU64(pageData []byte, key uint64, n int) int {
	lastKey, ok := nodeKeyU64(pageData, n-1)
	if !ok {
		return -1
	}
	switch {
	case key > lastKey:
		return n
	case key == lastKey:
		return n - 1
	}

	low, high := 0, n-2
	for low <= high {
		mid := (low + high) / 2
		midKey, ok := nodeKeyU64(pageData, mid)
		if !ok {
			return -1
		}
		switch {
		case key < midKey:
			high = mid - 1
		case key > midKey:
			low = mid + 1
		default:
			return mid
		}
	}
	return low
}

// searchBranchU64 mirrors searchLeafU64 for branch pages, where entry 0
// carries no key (it's the leftmost child pointer).
func searchBranchU64(pageData []byte, key uint64, n int) int {
	if n == 1 {
		return 0
	}
	lastKey, ok := nodeKeyU64(pageData, n-1)
	if !ok {
		return -1
	}
	if key >= lastKey {
		return n - 1
	}

	low, high := 1, n-2
	for low <= high {
		mid := (low + high) / 2
		midKey, ok := nodeKeyU64(pageData, mid)
		if !ok {
			return -1
		}
		switch {
		case key < midKey:
			high = mid - 1
		case key > midKey:
			low = mid + 1
		default:
			return mid
		}
	}
	return low - 1
}
