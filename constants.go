package mxdb

// These exported constants mirror the unexported wire-format values in
// meta.go/page.go/node.go (metaMagic, treeFlag*, nodeBig, ...) under the
// public names the compatibility surface expects callers to use. They
// must stay numerically identical to those twins — this is a naming
// layer over the same bits, not a second format definition.

// File identification: every on-disk meta record carries Magic (or, on a
// lock file, LockMagic) so a stray file of the wrong kind is rejected at
// open rather than misread as a datafile.
const (
	Magic       uint64 = 0x59659DBDEF4C11
	DataVersion        = 3
	LockVersion        = 6
	DataMagic          = (Magic << 8) + DataVersion
	LockMagic          = (Magic << 8) + LockVersion
)

const (
	MinPageSize     = 256
	MaxPageSize     = 65536
	DefaultPageSize = 4096
)

const (
	PageHeaderSize = 20
	NodeHeaderSize = 8
)

// Fixed topology: every environment has exactly CoreDBs trees (GC at
// FreeDBI, main at MainDBI) and NumMetas rotating meta slots at the head of
// the file, so user-created DBIs start numbering after MainDBI and user
// page numbers start at MinPageNo.
const (
	MaxDBI      = 32765
	MaxDataSize = 0x7fff0000
	MaxPageNo   uint32 = 0x7FFFffff
	NumMetas    = 3
	MinPageNo   = NumMetas
	CoreDBs     = 2
	FreeDBI     = 0
	MainDBI     = 1
)

// Txnid 0 is never assigned; the first NumMetas ids are consumed by
// initializing the NumMetas meta slots before any user commit.
const (
	MinTxnID     uint64 = 1
	InitialTxnID uint64 = MinTxnID + NumMetas - 1
	InvalidTxnID uint64 = 0xFFFFFFFFFFFFFFFF
)

// InvalidPageNo marks an empty tree's Root field — no page allocated yet.
const InvalidPageNo uint32 = 0xFFFFFFFF

// PageFlags is the public alias of the page-header flag bits page.go reads
// directly off the mapped bytes.
type PageFlags uint16

const (
	PageBranch      PageFlags = 0x01
	PageLeaf        PageFlags = 0x02
	PageLarge       PageFlags = 0x04
	PageMeta        PageFlags = 0x08
	PageLegacyDirty PageFlags = 0x10
	PageBad                   = PageLegacyDirty
	PageDupfix      PageFlags = 0x20
	PageSubP        PageFlags = 0x40 // sub-page embedded for a DUPSORT key
	PageSpilled     PageFlags = 0x2000
	PageLoose       PageFlags = 0x4000 // on the freelist, ready for reuse
	PageFrozen      PageFlags = 0x8000
)

// NodeFlags is the public alias of node.go's nodeFlags.
type NodeFlags uint8

const (
	NodeBig  NodeFlags = 0x01 // value lives on an overflow page, not inline
	NodeTree NodeFlags = 0x02 // value is a nested tree's root (named DB)
	NodeDup  NodeFlags = 0x04 // key has more than one value (DUPSORT)
)

// Label names an environment for multi-env tooling; purely advisory, not
// stored on disk.
type Label string

const Default Label = "default"

// Env.Open flags. Most pack two ways: a primary name matching libmdbx, plus
// one or more mdbx-go-style aliases kept for source compatibility.
const (
	EnvDefaults     uint = 0
	Validation      uint = 0x00002000
	NoSubdir        uint = 0x00004000
	ReadOnly        uint = 0x00020000
	Exclusive       uint = 0x00400000
	Accede          uint = 0x40000000
	WriteMap        uint = 0x00080000
	NoStickyThreads uint = 0x00200000
	NoReadAhead     uint = 0x00800000
	NoMemInit       uint = 0x01000000
	LifoReclaim     uint = 0x04000000
	PagePerturb     uint = 0x08000000
	NoMetaSync      uint = 0x00040000
	SafeNoSync      uint = 0x00010000
	UtterlyNoSync        = SafeNoSync | NoMetaSync

	Durable     = EnvDefaults
	Readonly    = ReadOnly
	NoTLS       = NoStickyThreads
	NoReadahead = NoReadAhead
)

// Per-transaction flags, passed to BeginTxn/RunTxn.
const (
	TxnReadWrite      uint = 0
	TxnReadOnly       uint = 0x20000
	TxnReadOnlyPrepare     = TxnReadOnly | 0x01000000
	TxnTry            uint = 0x10000000
	TxnNoMetaSync     uint = 0x00040000
	TxnNoSync         uint = 0x00010000
)

// Short aliases some mdbx-go callers use in place of the Txn* names above.
const (
	TxRW         = TxnReadWrite
	TxRO         = TxnReadOnly
	TxNoSync     = TxnNoSync
	TxNoMetaSync = TxnNoMetaSync
)

// Per-DBI flags, passed to Txn.OpenDBI.
const (
	DBDefaults uint = 0
	ReverseKey uint = 0x02
	DupSort    uint = 0x04
	IntegerKey uint = 0x08
	DupFixed   uint = 0x10
	IntegerDup uint = 0x20
	ReverseDup uint = 0x40
	Create     uint = 0x40000
	DBAccede   uint = 0x40000000
)

// Cursor.Put / Cursor.PutMulti flags.
const (
	Upsert      uint = 0
	NoOverwrite uint = 0x10
	NoDupData   uint = 0x20
	Current     uint = 0x40
	AllDups     uint = 0x80
	Reserve     uint = 0x10000
	Append      uint = 0x20000
	AppendDup   uint = 0x40000
	Multiple    uint = 0x80000
)

// Env.Copy flags.
const (
	CopyDefaults uint = 0
	CopyCompact  uint = 0x01 // accepted; Env.CopyFD ignores flags and copies every page
)

// Env.WarmUp flags: how aggressively to fault the mapping into the page
// cache before serving real traffic.
const (
	WarmupDefault    uint = 0
	WarmupForce      uint = 0x01
	WarmupOomSafe    uint = 0x02
	WarmupLock       uint = 0x04
	WarmupTouchLimit uint = 0x08
	WarmupRelease    uint = 0x10
)

// Default on-disk file names for a directory-style environment; NoSubdir
// mode appends LockSuffix to the datafile path instead.
const (
	DataFileName = "mdbx.dat"
	LockFileName = "mdbx.lck"
	LockSuffix   = "-lck"
)

// LogLvl is the mdbx-go-style verbosity level passed to SetLogger.
type LogLvl int

const (
	LogLvlFatal       LogLvl = 0
	LogLvlError       LogLvl = 1
	LogLvlWarn        LogLvl = 2
	LogLvlNotice      LogLvl = 3
	LogLvlVerbose     LogLvl = 4
	LogLvlDebug       LogLvl = 5
	LogLvlTrace       LogLvl = 6
	LogLvlExtra       LogLvl = 7
	LogLvlDoNotChange LogLvl = -1
)

const LoggerDoNotChange = LogLvlDoNotChange

// SetDebug flag bits.
const (
	DbgAssert          uint = 1
	DbgAudit           uint = 2
	DbgJitter          uint = 4
	DbgDump            uint = 8
	DbgLegacyMultiOpen uint = 16
	DbgLegacyTxOverlap uint = 32
	DbgDoNotChange     uint = 0xFFFFFFFF
)

const AllowTxOverlap = DbgLegacyTxOverlap

const MaxDbi = MaxDBI
