package mxdb

import (
	"encoding/binary"
	"sort"
)

// The free-DB (DBI 0) records pages a transaction freed, keyed by that
// transaction's ID, so a later writer can reclaim them once no reader
// can still see them. A record's key is the
// 8-byte big-endian TXNID that freed the pages, followed by a 2-byte
// sequence number distinguishing multiple records written by the same
// commit. Big-endian keeps the default byte-lexicographic DBI
// comparator in TXNID order, so a forward scan is a FIFO walk from the
// oldest freed batch.
const freelistKeySize = 10

func freelistKey(id txnid, seq uint16) []byte {
	var b [freelistKeySize]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(id))
	binary.BigEndian.PutUint16(b[8:10], seq)
	return b[:]
}

func freelistKeyTxnid(key []byte) (txnid, bool) {
	if len(key) < 8 {
		return 0, false
	}
	return txnid(binary.BigEndian.Uint64(key)), true
}

func encodeFreelistPages(pages []pgno) []byte {
	buf := make([]byte, len(pages)*4)
	for i, p := range pages {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(p))
	}
	return buf
}

func decodeFreelistPages(data []byte) []pgno {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	pages := make([]pgno, n)
	for i := 0; i < n; i++ {
		pages[i] = pgno(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return pages
}

// freelistSave serializes the pages this transaction freed into the
// free-DB. libmdbx runs this as a fixed-point loop because writing a free-DB
// record can itself dirty/free B+tree pages of DBI 0; this
// reimplementation bounds that loop instead of proving convergence
// (see DESIGN.md) — a handful of iterations is enough in practice
// because each pass only ever has to account for the previous pass's
// own page churn, which shrinks quickly.
func (txn *Txn) freelistSave() error {
	if txn.IsReadOnly() {
		return nil
	}

	var seq uint16
	for i := 0; i < 4; i++ {
		pending := txn.freePages
		if len(pending) == 0 {
			return nil
		}
		txn.freePages = nil

		if err := txn.Put(FreeDBI, freelistKey(txn.txnID, seq), encodeFreelistPages(pending), 0); err != nil {
			txn.freePages = pending
			return err
		}
		seq++
	}
	return nil
}

// freelistReclaim pulls the oldest free-DB record whose TXNID predates
// every live reader into txn.freePages (FIFO order). It returns true
// if it reclaimed anything. Called from the
// page allocator when the in-transaction free list and loose-page list
// are both empty and before falling back to a fresh page.
func (txn *Txn) freelistReclaim() bool {
	if txn.reclaiming || txn.IsReadOnly() {
		return false
	}

	oldest := txn.env.lockFile.oldestReader()
	if oldest == ^uint64(0) {
		// No active readers: every already-committed free-DB record is safe to reuse.
		oldest = uint64(txn.txnID)
	}

	txn.reclaiming = true
	defer func() { txn.reclaiming = false }()

	cursor, err := txn.OpenCursor(FreeDBI)
	if err != nil {
		return false
	}
	defer cursor.Close()

	key, value, err := cursor.Get(nil, nil, First)
	if err != nil || key == nil {
		return false
	}

	recordTxn, ok := freelistKeyTxnid(key)
	if !ok || uint64(recordTxn) >= oldest {
		return false
	}

	pages := decodeFreelistPages(value)
	if err := cursor.Del(0); err != nil {
		return false
	}

	txn.freePages = append(txn.freePages, pages...)
	txn.env.logger.Debug().
		Uint64("record_txnid", uint64(recordTxn)).
		Uint64("oldest_reader", oldest).
		Int("pages", len(pages)).
		Msg("reclaimed free-DB record")
	if txn.env.metrics != nil {
		txn.env.metrics.FreelistSize.Set(float64(len(txn.freePages)))
	}
	return len(pages) > 0
}

// freelistReclaimRun looks for n contiguous page numbers among the pages
// already reclaimed into txn.freePages, pulling in additional free-DB
// records as needed, and returns the start of that run with the pages
// removed from txn.freePages. Used by the overflow-page allocator, which
// needs one contiguous range rather than the single page allocatePage
// consumes at a time. A bounded number of free-DB records is consulted
// (each call already does its own oldest-reader bookkeeping) so a sparse
// free-DB with no run long enough falls back to fresh allocation quickly
// instead of scanning the whole DB.
func (txn *Txn) freelistReclaimRun(n int) (pgno, bool) {
	if n <= 0 || txn.IsReadOnly() {
		return 0, false
	}

	if start, ok := findContiguousRun(txn.freePages, n); ok {
		txn.freePages = removePageRun(txn.freePages, start, n)
		return start, true
	}

	for i := 0; i < 8; i++ {
		if !txn.freelistReclaim() {
			break
		}
		if start, ok := findContiguousRun(txn.freePages, n); ok {
			txn.freePages = removePageRun(txn.freePages, start, n)
			return start, true
		}
	}

	return 0, false
}

// findContiguousRun reports the lowest page number starting a run of n
// consecutive page numbers within pages, if one exists.
func findContiguousRun(pages []pgno, n int) (pgno, bool) {
	if len(pages) < n {
		return 0, false
	}

	sorted := append([]pgno(nil), pages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if n == 1 {
		return sorted[0], true
	}

	run := 1
	for i := 1; i < len(sorted); i++ {
		switch {
		case sorted[i] == sorted[i-1]+1:
			run++
			if run == n {
				return sorted[i-n+1], true
			}
		case sorted[i] != sorted[i-1]:
			run = 1
		}
	}
	return 0, false
}

// removePageRun returns pages with the n page numbers starting at start
// removed, preserving the relative order of everything else.
func removePageRun(pages []pgno, start pgno, n int) []pgno {
	end := start + pgno(n)
	out := pages[:0]
	for _, p := range pages {
		if p >= start && p < end {
			continue
		}
		out = append(out, p)
	}
	return out
}
