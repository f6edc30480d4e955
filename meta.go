package mxdb

import (
	"crypto/rand"
	"sync/atomic"
	"unsafe"
)

// Meta page layout constants, wire-compatible with libmdbx's meta_t.
const (
	// metaSize is the on-disk footprint of one meta record, page-aligned.
	metaSize = 256

	// numMetas is the number of rotating meta slots at the head of the file.
	numMetas = 3

	// metaMagic tags the file as an mxdb/mdbx-format datafile.
	metaMagic uint64 = 0x59659DBDEF4C11

	// metaDataVersion is the highest meta layout version this build writes.
	metaDataVersion = 3

	metaDataMagic = (metaMagic << 8) + metaDataVersion
)

// canary carries four user-settable sequence values that round-trip through
// commit/sync; applications use them to detect whether a given snapshot
// reflects a particular write.
type canary struct {
	X, Y, Z, V uint64
}

const canarySize = 32

// meta mirrors one on-disk meta record. Field order and sizes are fixed by
// the wire format and may not be reordered:
//
//	Offset  Size  Field
//	0       8     magic_and_version
//	8       8     txnid_a (two-phase update)
//	16      2     reserve16
//	18      1     validator_id
//	19      1     extra_pagehdr
//	20      20    geometry
//	40      48    gc tree
//	88      48    main tree
//	136     32    canary
//	168     8     sign
//	176     8     txnid_b (two-phase update)
//	184     8     pages_retired
//	192     16    bootid
//	208     16    dxbid
type meta struct {
	// Magic and version for file format identification
	MagicAndVersion [2]uint32

	// Transaction ID - first part of two-phase update
	TxnidA [2]uint32

	// Reserved and extra fields
	Reserve16    uint16
	ValidatorID  uint8
	ExtraPageHdr int8

	// Database geometry
	Geometry geo

	// Core database trees
	GCTree   tree // Garbage collection tree
	MainTree tree // Main database tree

	// User canary for detecting partial updates
	Canary canary

	// Data signature
	Sign [2]uint32

	// Transaction ID - second part of two-phase update
	TxnidB [2]uint32

	// Pages retired after COW
	PagesRetired [2]uint32

	// Boot ID for detecting system reboots
	BootID [16]byte

	// Database GUID
	DXBID [16]byte
}

// readMeta reinterprets a page-sized byte slice as a *meta without copying;
// the slice must stay backed by the mapped datafile (or a stable buffer) for
// as long as the returned pointer is read.
func readMeta(data []byte) (*meta, error) {
	if len(data) < 220 {
		return nil, errMetaTooSmall
	}
	return (*meta)(unsafe.Pointer(&data[0])), nil
}

func (m *meta) magicValid() bool {
	magic := joinU64(m.MagicAndVersion[0], m.MagicAndVersion[1])
	return (magic >> 8) == metaMagic
}

func (m *meta) version() uint8 {
	return uint8(m.MagicAndVersion[0])
}

// joinU64 reassembles a 64-bit value stored as two native-order uint32
// halves, the representation every txnid/sign field in this struct uses so
// the two halves can be updated independently under beginMetaUpdate.
func joinU64(lo, hi uint32) uint64 {
	return uint64(lo) | (uint64(hi) << 32)
}

// txnidASafe and txnidBSafe load the two bracketing txnid halves with
// atomic ops, since a concurrent writer may be mid-beginMetaUpdate.
func (m *meta) txnidASafe() txnid {
	return txnid(joinU64(atomic.LoadUint32(&m.TxnidA[0]), atomic.LoadUint32(&m.TxnidA[1])))
}

func (m *meta) txnidBSafe() txnid {
	return txnid(joinU64(atomic.LoadUint32(&m.TxnidB[0]), atomic.LoadUint32(&m.TxnidB[1])))
}

// txnID returns the committed transaction id. Callers that haven't already
// checked isConsistent should prefer txnidASafe/txnidBSafe directly.
func (m *meta) txnID() txnid {
	return txnid(joinU64(m.TxnidA[0], m.TxnidA[1]))
}

func (m *meta) setTxnid(tid txnid) {
	m.TxnidA[0], m.TxnidA[1] = uint32(tid), uint32(tid>>32)
	m.TxnidB[0], m.TxnidB[1] = uint32(tid), uint32(tid>>32)
}

// isConsistent holds once both halves of the two-phase txnid bracket agree,
// meaning the record was not observed mid-write.
func (m *meta) isConsistent() bool {
	return m.txnidASafe() == m.txnidBSafe()
}

// Sign values up to datasignWeak mean "not yet fsynced"; anything above it
// (in practice only datasignSteady itself) means the backing pages are
// durable on disk as of this meta's txnid.
const (
	datasignNone   = 0
	datasignWeak   = 1
	datasignSteady = 0xFFFFFFFFFFFFFFFF
)

func (m *meta) isWeak() bool {
	return joinU64(m.Sign[0], m.Sign[1]) <= datasignWeak
}

func (m *meta) isSteady() bool {
	return !m.isWeak()
}

func (m *meta) setSignWeak() {
	m.Sign[0], m.Sign[1] = uint32(datasignWeak), 0
}

func (m *meta) setSignSteady() {
	m.Sign[0], m.Sign[1] = 0xFFFFFFFF, 0xFFFFFFFF
}

// pageSize recovers the page size this meta was written with. The GC tree's
// DupfixSize slot is unused by an integer-keyed tree in any other sense, so
// it's reused to carry the value (matches the on-disk format, not a choice
// made here).
func (m *meta) pageSize() uint32 {
	return m.GCTree.DupfixSize
}

// validate is the full "is this a usable meta" check: right magic, a
// version this build understands, and a complete (non-torn) write.
func (m *meta) validate() error {
	if !m.magicValid() {
		return errMetaInvalidMagic
	}
	if v := m.version(); v < 2 || v > metaDataVersion {
		return errMetaInvalidVersion
	}
	if !m.isConsistent() {
		return errMetaInconsistent
	}
	return nil
}

func (m *meta) clone() *meta {
	clone := *m
	return &clone
}

// metaTriple holds references to all three meta pages with their state.
type metaTriple struct {
	metas  [numMetas]*meta
	txnids [numMetas]txnid
	recent int // Index of most recent valid meta
	steady int // Index of most recent steady (synced) meta
}

// rescan re-derives recent/steady from a fresh read of all numMetas pages:
// the head meta is the one with the highest txnid among valid metas, ties
// broken in favor of a steady (fully-synced) one. recent tracks the
// highest-txnid valid meta seen regardless of signature, steady tracks the
// highest-txnid meta that also carries a steady signature, and steady
// falls back to recent when nothing steady exists yet (a brand new
// environment, or one running with sync disabled).
func (mt *metaTriple) rescan(pages [numMetas][]byte) error {
	mt.recent = -1
	mt.steady = -1
	var maxTxnid, maxSteadyTxnid txnid

	for i := 0; i < numMetas; i++ {
		m, err := readMeta(pages[i])
		if err != nil || m.validate() != nil {
			mt.metas[i] = nil
			mt.txnids[i] = 0
			continue
		}

		mt.metas[i] = m
		mt.txnids[i] = m.txnID()

		if mt.txnids[i] > maxTxnid ||
			(mt.recent >= 0 && mt.txnids[i] == maxTxnid && m.isSteady() && !mt.metas[mt.recent].isSteady()) {
			maxTxnid = mt.txnids[i]
			mt.recent = i
		}
		if m.isSteady() && mt.txnids[i] > maxSteadyTxnid {
			maxSteadyTxnid = mt.txnids[i]
			mt.steady = i
		}
	}

	if mt.recent < 0 {
		return errMetaNoValid
	}
	if mt.steady < 0 {
		mt.steady = mt.recent
	}
	return nil
}

// newMetaTriple builds a metaTriple from a fresh read of all meta pages.
func newMetaTriple(pages [numMetas][]byte) (*metaTriple, error) {
	mt := &metaTriple{recent: -1, steady: -1}
	if err := mt.rescan(pages); err != nil {
		return nil, err
	}
	return mt, nil
}

// updateFromPages re-derives recent/steady in place, without allocating a
// new metaTriple; callers on the read-txn hot path reuse one instance.
func (mt *metaTriple) updateFromPages(pages [numMetas][]byte) error {
	return mt.rescan(pages)
}

func (mt *metaTriple) recentMeta() *meta {
	if mt.recent < 0 {
		return nil
	}
	return mt.metas[mt.recent]
}

func (mt *metaTriple) steadyMeta() *meta {
	if mt.steady < 0 {
		return nil
	}
	return mt.metas[mt.steady]
}

// nextMetaIndex picks the slot a new commit should overwrite: the slot
// holding the oldest txnid, so the rotation never clobbers the two most
// recent records a reader might still be resolving against.
func (mt *metaTriple) nextMetaIndex() int {
	oldest := 0
	for i := 1; i < numMetas; i++ {
		if mt.txnids[i] < mt.txnids[oldest] {
			oldest = i
		}
	}
	return oldest
}

var (
	errMetaTooSmall       = &pageError{"meta page too small"}
	errMetaInvalidMagic   = &pageError{"invalid magic number"}
	errMetaInvalidVersion = &pageError{"invalid format version"}
	errMetaInconsistent   = &pageError{"meta page inconsistent (incomplete write)"}
	errMetaNoValid        = &pageError{"no valid meta page found"}
)

// beginMetaUpdate opens the two-phase bracket for a commit: txnid_a takes
// the new value immediately, txnid_b is zeroed so a reader racing the write
// sees isConsistent() fail until endMetaUpdate closes the bracket.
func (m *meta) beginMetaUpdate(newTxnid txnid) {
	atomic.StoreUint32(&m.TxnidA[0], uint32(newTxnid))
	atomic.StoreUint32(&m.TxnidA[1], uint32(newTxnid>>32))
	atomic.StoreUint32(&m.TxnidB[0], 0)
	atomic.StoreUint32(&m.TxnidB[1], 0)
}

// endMetaUpdate closes the bracket opened by beginMetaUpdate, making the
// record consistent again.
func (m *meta) endMetaUpdate(tid txnid) {
	atomic.StoreUint32(&m.TxnidB[0], uint32(tid))
	atomic.StoreUint32(&m.TxnidB[1], uint32(tid>>32))
}

// initMeta stamps a fresh meta record for a brand-new environment: both
// trees empty, geometry at its conservative defaults, signature steady
// (there is nothing dirty to sync yet).
func initMeta(m *meta, pageSize uint32, tid txnid) {
	m.MagicAndVersion[0] = uint32(metaDataMagic)
	m.MagicAndVersion[1] = uint32(metaDataMagic >> 32)
	m.setTxnid(tid)

	// GrowPV/ShrinkPV are packed exponential step sizes; Lower/DBPgsize/Now/Next
	// are page counts (DBPgsize doubles as the upper bound in this slot).
	m.Geometry = geo{
		GrowPV:   0x0180,
		ShrinkPV: 0x0300,
		Lower:    numMetas,
		DBPgsize: 0x1800000,
		Now:      numMetas,
		Next:     numMetas, // first page after the numMetas meta slots
	}

	m.GCTree.Flags = treeFlagIntegerKey // GC keys are txnids
	m.GCTree.DupfixSize = pageSize      // doubles as the pageSize() slot
	m.GCTree.Root = invalidPgno
	m.MainTree.Root = invalidPgno

	m.setSignSteady()
	rand.Read(m.BootID[:])
}

// geo is the datafile growth/shrink policy plus current and next page
// counts, embedded verbatim in every meta record (20 bytes).
type geo struct {
	GrowPV   uint16 // grow step, packed exponential
	ShrinkPV uint16 // shrink threshold, packed exponential
	Lower    pgno   // minimum datafile size, in pages
	DBPgsize pgno   // maximum datafile size, in pages
	Now      pgno   // current mapped size, in pages
	Next     pgno   // next page number to allocate
}

const geoSize = 20

// tree is one B+tree's root metadata: where it lives and how big it is.
// Every environment carries exactly two — the GC tree (DBI 0, the freelist)
// and the main tree — each embedded in the meta record (48 bytes).
type tree struct {
	Flags       uint16
	Height      uint16
	DupfixSize  uint32 // fixed value size for DUPFIXED named DBs
	Root        pgno
	BranchPages pgno
	LeafPages   pgno
	LargePages  pgno
	Sequence    uint64 // Txn.Sequence counter for this DB
	Items       uint64
	ModTxnid    txnid
}

const treeSize = 48

const (
	treeFlagReverseKey uint16 = 0x02
	treeFlagDupSort    uint16 = 0x04
	treeFlagIntegerKey uint16 = 0x08
	treeFlagDupFixed   uint16 = 0x10
	treeFlagIntegerDup uint16 = 0x20
	treeFlagReverseDup uint16 = 0x40
)

func (t *tree) isEmpty() bool {
	return t.Root == invalidPgno || t.Items == 0
}

func (t *tree) isDupSort() bool {
	return t.Flags&treeFlagDupSort != 0
}

func (t *tree) isDupFixed() bool {
	return t.Flags&treeFlagDupFixed != 0
}

func (t *tree) isIntegerKey() bool {
	return t.Flags&treeFlagIntegerKey != 0
}

func (t *tree) isReverseKey() bool {
	return t.Flags&treeFlagReverseKey != 0
}

func (t *tree) totalPages() uint64 {
	return uint64(t.BranchPages) + uint64(t.LeafPages) + uint64(t.LargePages)
}

func (t *tree) clone() *tree {
	clone := *t
	return &clone
}

// reset clears a tree back to empty while preserving the settings that
// belong to the DBI rather than its current contents (flags, dup-fixed
// value size, sequence counter, last-modified txnid) — used by Txn.Drop
// when the caller asks to keep the handle but discard its rows.
func (t *tree) reset() {
	t.Root = invalidPgno
	t.Height = 0
	t.BranchPages = 0
	t.LeafPages = 0
	t.LargePages = 0
	t.Items = 0
}

func (g *geo) sizeBytes(pageSize uint) uint64 {
	return uint64(g.Now) * uint64(pageSize)
}

func (g *geo) minSizeBytes(pageSize uint) uint64 {
	return uint64(g.Lower) * uint64(pageSize)
}

func (g *geo) maxSizeBytes(pageSize uint) uint64 {
	return uint64(g.DBPgsize) * uint64(pageSize)
}

func (g *geo) clone() *geo {
	clone := *g
	return &clone
}
