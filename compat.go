package mxdb

import (
	"errors"
	"os"
	"time"
)

// TxnOp is the callback shape View/Update/RunTxn drive: do work against txn,
// returning nil to commit or any error to abort.
type TxnOp func(txn *Txn) error

// CmpFunc compares two keys or values the way a custom DBI comparator would.
type CmpFunc = func(a, b []byte) int

// Size measures geometry parameters in bytes; a dedicated type instead of
// bare int64 matches how mdbx-go callers pass geometry around and keeps
// SetGeometrySize's argument list from being five interchangeable int64s.
type Size int64

// Geometry bundles SetGeometry's six positional arguments into a struct,
// for callers porting code written against mdbx-go's Env.SetGeometry(Geometry).
type Geometry struct {
	SizeLower       Size
	SizeNow         Size
	SizeUpper       Size
	GrowthStep      Size
	ShrinkThreshold Size
	PageSize        int
}

func (e *Env) SetGeometryGeo(geo Geometry) error {
	return e.SetGeometrySize(geo.SizeLower, geo.SizeNow, geo.SizeUpper, geo.GrowthStep, geo.ShrinkThreshold, geo.PageSize)
}

func (e *Env) SetGeometrySize(sizeLower, sizeNow, sizeUpper, growthStep, shrinkThreshold Size, pageSize int) error {
	return e.SetGeometry(
		int64(sizeLower),
		int64(sizeNow),
		int64(sizeUpper),
		int64(growthStep),
		int64(shrinkThreshold),
		pageSize,
	)
}

// View runs fn in a read-only transaction, aborting it if fn errors.
func (e *Env) View(fn TxnOp) error {
	return e.RunTxn(TxnReadOnly, fn)
}

// Update runs fn in a read-write transaction, committing on a nil return
// and aborting otherwise.
func (e *Env) Update(fn TxnOp) error {
	return e.RunTxn(TxnReadWrite, fn)
}

// RunTxn is the shared begin/run/commit-or-abort loop behind View and Update.
func (e *Env) RunTxn(flags uint, fn TxnOp) error {
	txn, err := e.BeginTxn(nil, flags)
	if err != nil {
		return err
	}
	err = fn(txn)
	if err != nil {
		txn.Abort()
		return err
	}
	_, err = txn.Commit()
	return err
}

// clearBinding resets the fields that tie a cursor to a transaction/tree,
// shared by Bind (before rebinding), Unbind, and CursorToPool.
func (c *Cursor) clearBinding() {
	c.txn = nil
	c.tree = nil
	c.state = cursorUninitialized
	c.top = -1
	c.dirtyMask = 0
}

// Bind attaches a cursor obtained from CursorFromPool (or CreateCursor) to
// a transaction and DBI, so it can be reused across transactions instead of
// allocating a fresh Cursor each time.
func (c *Cursor) Bind(txn *Txn, dbi DBI) error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}
	if dbi >= DBI(len(txn.trees)) {
		return NewError(ErrBadDBI)
	}

	c.signature = cursorSignature
	c.clearBinding()
	c.txn = txn
	c.dbi = dbi
	c.tree = &txn.trees[dbi]

	txn.cursors = append(txn.cursors, c)
	return nil
}

// Renew rebinds a pooled cursor to a new read-only transaction, keeping its
// previous DBI.
func (c *Cursor) Renew(txn *Txn) error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}
	if txn.flags&uint32(TxnReadOnly) == 0 {
		return NewError(ErrIncompatible)
	}
	return c.Bind(txn, c.dbi)
}

// Unbind detaches the cursor from its transaction so it can be re-bound
// with Bind, or returned to the pool via CursorToPool.
func (c *Cursor) Unbind() error {
	if c == nil {
		return nil
	}
	if c.txn != nil {
		c.txn.removeCursor(c)
	}
	c.clearBinding()
	return nil
}

// cursorBindPool backs CursorFromPool/CursorToPool, a bounded free list so
// callers doing many short-lived cursors can skip allocation.
var cursorBindPool = make(chan *Cursor, 128)

// CursorFromPool draws a cursor from the pool, or allocates one if it's
// empty. The result is unbound; call Bind before use.
func CursorFromPool() *Cursor {
	select {
	case c := <-cursorBindPool:
		return c
	default:
		return &Cursor{}
	}
}

// CursorToPool clears and returns a cursor to the pool. Dropped silently
// once the pool is full — the GC reclaims it like any other value.
func CursorToPool(c *Cursor) {
	if c == nil {
		return
	}
	c.clearBinding()

	select {
	case cursorBindPool <- c:
	default:
	}
}

// CreateCursor allocates a new unbound cursor, bypassing the pool.
func CreateCursor() *Cursor {
	return &Cursor{}
}

// Multi is a read-only view over a DUPFIXED value page: a run of
// equal-length values packed back to back, sliced out by fixed stride
// rather than parsed node by node.
type Multi struct {
	page   []byte
	stride int
}

func WrapMulti(page []byte, stride int) *Multi {
	return &Multi{page: page, stride: stride}
}

func (m *Multi) at(i int) []byte {
	return m.page[i*m.stride : (i+1)*m.stride]
}

// Vals slices out every value in the page.
func (m *Multi) Vals() [][]byte {
	n := m.Len()
	if n == 0 {
		return nil
	}
	vals := make([][]byte, n)
	for i := range vals {
		vals[i] = m.at(i)
	}
	return vals
}

// Val returns the value at index i, or nil if i is out of range.
func (m *Multi) Val(i int) []byte {
	if m.stride == 0 || i < 0 || (i+1)*m.stride > len(m.page) {
		return nil
	}
	return m.at(i)
}

func (m *Multi) Len() int {
	if m.stride == 0 {
		return 0
	}
	return len(m.page) / m.stride
}

func (m *Multi) Stride() int {
	return m.stride
}

func (m *Multi) Size() int {
	return len(m.page)
}

func (m *Multi) Page() []byte {
	return m.page
}

// Duration16dot16 is libmdbx's 16.16 fixed-point duration encoding, used by
// a handful of timing-related compat knobs.
type Duration16dot16 uint32

func NewDuration16dot16(d time.Duration) Duration16dot16 {
	return Duration16dot16(d.Seconds() * 65536)
}

func (d Duration16dot16) ToDuration() time.Duration {
	return time.Duration(float64(d) / 65536 * float64(time.Second))
}

// Errno adapts an ErrorCode to the plain-int error type mdbx-go callers
// expect, backed by the same message table as *Error.
type Errno int

func (e Errno) Error() string {
	if msg, ok := errorMessages[ErrorCode(e)]; ok {
		return msg
	}
	return "unknown error"
}

func (e Errno) Is(target error) bool {
	t, ok := target.(Errno)
	return ok && e == t
}

// OpError pairs an error with the operation name that produced it, mirroring
// mdbx-go's convention of naming the failing call in the error string.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func IsErrno(err error, errno Errno) bool {
	var e Errno
	return errors.As(err, &e) && e == errno
}

// IsErrnoFn lets a caller supply an arbitrary predicate instead of a fixed
// Errno value, for compat call sites that match on more than one code.
func IsErrnoFn(err error, fn func(error) bool) bool {
	return fn(err)
}

func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}

// FromHex decodes a hex string, accepting an optional "0x"/"0X" prefix and
// padding an odd number of digits with a leading zero rather than erroring
// — convenient for hand-typed keys in tests and the CLI tools.
func FromHex(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	result := make([]byte, len(s)/2)
	for i := 0; i < len(result); i++ {
		result[i] = fromHexChar(s[i*2])<<4 | fromHexChar(s[i*2+1])
	}
	return result
}

func fromHexChar(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// GetSysRamInfo reports page-level memory sizing used by mdbx-go callers to
// pick a default map size; this build has no syscall-backed source for it,
// so it returns fixed, conservative placeholders rather than guessing at
// OS-specific /proc or sysctl parsing.
func GetSysRamInfo() (pageSize, totalPages, availablePages int, err error) {
	pageSize = 4096
	totalPages = 1024 * 1024 // nominal 4GB at 4KB pages
	availablePages = totalPages / 2
	return
}

// LoggerFunc is the mdbx-go-style logging callback; mxdb's own structured
// logging lives in the log package (SPEC_FULL.md §1.1) — this hook exists
// only so code ported against the compat surface still links.
type LoggerFunc func(msg string, args ...any)

var (
	globalLogLevel           LogLvl     = LogLvlDoNotChange
	globalLogger             LoggerFunc = nil //nolint:unused // compat hook, not wired to output
	globalDebug              uint       = 0
	globalSlowReadersHandler HandleSlowReadersFunc
)

// SetDebug sets global debug flags and returns the previous value.
// DbgDoNotChange leaves the current flags untouched, mirroring how a caller
// probes the current value without side effects.
func SetDebug(flags uint) uint {
	prev := globalDebug
	if flags != DbgDoNotChange {
		globalDebug = flags
	}
	return prev
}

// SetLogger installs a logging callback and level, returning the previous
// level so a caller can restore it later.
func SetLogger(logger LoggerFunc, level LogLvl) LogLvl {
	prev := globalLogLevel
	globalLogger = logger
	if level != LogLvlDoNotChange {
		globalLogLevel = level
	}
	return prev
}

// HandleSlowReadersFunc lets a caller intervene when a reader has been
// pinning GC for too long; returning a negative value tells the writer to
// forcibly evict that reader's slot.
type HandleSlowReadersFunc func(env *Env, txn *Txn, pid int, tid uint64, laggard uint64, gap uint64, space uint64, retry int) int

// SetHandleSlowReaders installs the slow-reader callback, returning the
// previous one.
func SetHandleSlowReaders(fn HandleSlowReadersFunc) HandleSlowReadersFunc {
	prev := globalSlowReadersHandler
	globalSlowReadersHandler = fn
	return prev
}

// PutMulti stores a DUPFIXED page's worth of equal-length values under one
// key, one cursor Put per value — there's no bulk node format, so this is
// sugar over repeated Put rather than a distinct wire operation.
func (c *Cursor) PutMulti(key []byte, page []byte, stride int, flags uint) error {
	if !c.valid() {
		return ErrBadCursorError
	}
	if c.txn.flags&uint32(TxnReadOnly) != 0 {
		return NewError(ErrPermissionDenied)
	}

	for i := 0; i < len(page)/stride; i++ {
		if err := c.Put(key, page[i*stride:(i+1)*stride], flags); err != nil {
			return err
		}
	}
	return nil
}

// PutReserve stores n zeroed bytes under key and returns an n-byte zeroed
// slice. Put copies the value into the page, so the returned slice is not
// the stored bytes: writing into it does not change what is stored.
func (c *Cursor) PutReserve(key []byte, n int, flags uint) ([]byte, error) {
	if !c.valid() {
		return nil, ErrBadCursorError
	}
	if c.txn.flags&uint32(TxnReadOnly) != 0 {
		return nil, NewError(ErrPermissionDenied)
	}

	value := make([]byte, n)
	if err := c.Put(key, value, flags); err != nil {
		return nil, err
	}
	return value, nil
}
