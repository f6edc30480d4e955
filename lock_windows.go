//go:build windows

package mxdb

import (
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

// cachedPID avoids an os.Getpid() syscall on every reader-slot claim.
var cachedPID = uint32(os.Getpid())

const (
	// lockMagic tags the reader-registry file, distinct from the datafile magic.
	lockMagic uint64 = (0x59659DBDEF4C11 << 8) + 6

	defaultMaxReaders = 126
	readerSlotSize    = 32
	lockHeaderSize    = 256
)

// readerSlot is one entry in the shared reader table: a live read
// transaction publishes its snapshot txnid here so a writer's GC pass
// knows how far back it must keep pages reachable.
type readerSlot struct {
	txnid                uint64
	tid                  uint64
	pid                  uint32
	snapshotPagesUsed    uint32
	snapshotPagesRetired uint64
}

// Sentinel txnid values a slot can hold besides a real snapshot id.
const (
	tidTxnOusted uint64 = 0xFFFFFFFFFFFFFFFF - 1 // forcibly evicted by a writer
	tidTxnParked uint64 = 0xFFFFFFFFFFFFFFFF     // claimed but not yet assigned a txnid
)

// lockHeader is the fixed-size prologue of the reader-registry file.
type lockHeader struct {
	magicAndVersion    uint64
	osFormat           uint32
	envMode            uint32
	autosyncThreshold  uint32
	metaSyncTxnID      uint32
	autosyncPeriod     uint64
	baitUniqueness     uint64
	mlockCount         [2]uint32
	_                  [64]byte
	cachedOldest       uint64
	eoosTimestamp      uint64
	unsyncVolume       uint64
	_                  [32]byte
	numReaders         uint32
	readersRefreshFlag uint32
}

// lockFile is the mapped reader-registry file backing one Env. Most of its
// state lives in the mapped `slots`; `lockless` mode (read-only opens
// against a missing or foreign-owned lock file) substitutes in-process
// slots so a read-only Env can still track its own readers.
type lockFile struct {
	file       *os.File
	data       []byte
	header     *lockHeader
	slots      []readerSlot
	maxReaders int
	writerLock bool
	lockless   bool
	memSlots   []readerSlot
	memHeader  *lockHeader
	mapping    windows.Handle

	// freeSlots is a LIFO cache of recently released slot indices so the
	// common acquire/release churn avoids rescanning the whole table.
	freeSlots []int32
	freeMu    sync.Mutex
}

// openLockFile opens or creates the reader-registry file alongside the
// datafile. A missing or undersized file falls back to lockless mode
// rather than failing, since a read-only opener may not have write access
// to create one.
func openLockFile(path string, maxReaders int, create bool) (*lockFile, error) {
	if maxReaders <= 0 {
		maxReaders = defaultMaxReaders
	}

	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		if !create {
			return openLockFileReadOnly(path, maxReaders)
		}
		return nil, err
	}

	lf := &lockFile{file: f, maxReaders: maxReaders}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := fi.Size()
	expectedSize := int64(lockHeaderSize + maxReaders*readerSlotSize)

	switch {
	case size == 0 && create:
		if err := lf.initialize(expectedSize); err != nil {
			f.Close()
			return nil, err
		}
	case size < expectedSize:
		f.Close()
		return openLockFileReadOnly(path, maxReaders)
	}

	if err := lf.mmap(); err != nil {
		f.Close()
		return nil, err
	}

	if lf.header.magicAndVersion != lockMagic {
		lf.close()
		return nil, errLockInvalidFile
	}

	return lf, nil
}

// openLockFileReadOnly backs an Env with in-process-only reader slots when
// the real reader-registry file is missing, truncated, or not writable —
// the reader still tracks itself, it just can't be seen by other processes.
func openLockFileReadOnly(path string, maxReaders int) (*lockFile, error) {
	if maxReaders <= 0 {
		maxReaders = defaultMaxReaders
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f = nil
	}

	lf := &lockFile{file: f, maxReaders: maxReaders, lockless: true}
	lf.memSlots = make([]readerSlot, maxReaders)
	lf.slots = lf.memSlots
	lf.memHeader = &lockHeader{magicAndVersion: lockMagic}
	lf.header = lf.memHeader

	return lf, nil
}

func (lf *lockFile) initialize(size int64) error {
	if err := lf.file.Truncate(size); err != nil {
		return err
	}

	header := lockHeader{magicAndVersion: lockMagic}
	headerBytes := (*[lockHeaderSize]byte)(unsafe.Pointer(&header))[:]
	if _, err := lf.file.WriteAt(headerBytes, 0); err != nil {
		return err
	}
	return lf.file.Sync()
}

func (lf *lockFile) mmap() error {
	fi, err := lf.file.Stat()
	if err != nil {
		return err
	}

	size := fi.Size()
	handle := windows.Handle(lf.file.Fd())

	// Create file mapping
	maxSizeHigh := uint32(uint64(size) >> 32)
	maxSizeLow := uint32(size)

	mapping, err := windows.CreateFileMapping(handle, nil, windows.PAGE_READWRITE, maxSizeHigh, maxSizeLow, nil)
	if err != nil {
		return err
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapping)
		return err
	}

	// Create slice from mapped memory
	var data []byte
	sh := (*struct {
		Data uintptr
		Len  int
		Cap  int
	})(unsafe.Pointer(&data))
	sh.Data = addr
	sh.Len = int(size)
	sh.Cap = int(size)

	lf.data = data
	lf.mapping = mapping
	lf.header = (*lockHeader)(unsafe.Pointer(&data[0]))

	slotData := data[lockHeaderSize:]
	numSlots := min(len(slotData)/readerSlotSize, lf.maxReaders)
	lf.slots = unsafe.Slice((*readerSlot)(unsafe.Pointer(&slotData[0])), numSlots)

	return nil
}

func (lf *lockFile) close() error {
	if lf.data != nil {
		addr := uintptr(unsafe.Pointer(&lf.data[0]))
		windows.UnmapViewOfFile(addr)
		lf.data = nil
	}
	if lf.mapping != 0 {
		windows.CloseHandle(lf.mapping)
		lf.mapping = 0
	}
	if lf.writerLock {
		lf.unlockWriter()
	}
	if lf.file != nil {
		return lf.file.Close()
	}
	return nil
}

func (lf *lockFile) lockWriter() error {
	handle := windows.Handle(lf.file.Fd())
	var overlapped windows.Overlapped
	if err := windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &overlapped); err != nil {
		return &lockError{"acquire writer lock", err}
	}
	lf.writerLock = true
	return nil
}

// tryLockWriter is lockWriter's non-blocking counterpart, used when the
// caller needs to tell "another writer holds this" apart from a real error.
func (lf *lockFile) tryLockWriter() (bool, error) {
	handle := windows.Handle(lf.file.Fd())
	var overlapped windows.Overlapped
	err := windows.LockFileEx(handle, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &overlapped)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return false, nil
		}
		return false, &lockError{"try writer lock", err}
	}
	lf.writerLock = true
	return true, nil
}

func (lf *lockFile) unlockWriter() error {
	if !lf.writerLock {
		return nil
	}
	handle := windows.Handle(lf.file.Fd())
	var overlapped windows.Overlapped
	if err := windows.UnlockFileEx(handle, 0, 1, 0, &overlapped); err != nil {
		return &lockError{"release writer lock", err}
	}
	lf.writerLock = false
	return nil
}

// hasActiveReaders reports whether any reader slot is currently claimed —
// used to decide whether a superseded mapping can be released yet. lf.slots
// already aliases memSlots under lockless mode (see openLockFileReadOnly),
// so one table covers both cases.
func (lf *lockFile) hasActiveReaders() bool {
	for i := range lf.slots {
		if lf.slots[i].txnid != 0 {
			return true
		}
	}
	return false
}

// claimFreeSlot installs (pid, tid) into slot via CAS, returning false if
// another goroutine/process claimed it first. The parked sentinel
// (tidTxnParked, i.e. ^uint64(0)) marks "claimed, snapshot txnid not yet
// published" so oldestReader/numActiveReaders never mistake it for a real
// snapshot (hasActiveReaders does count a parked slot).
func claimFreeSlot(slot *readerSlot, pid uint32, tid uint64) bool {
	if !atomic.CompareAndSwapUint64(&slot.txnid, 0, tidTxnParked) {
		return false
	}
	atomic.StoreUint32(&slot.pid, pid)
	atomic.StoreUint64(&slot.tid, tid)
	return true
}

// acquireReaderSlot claims a free slot for a new reader. The freelist
// stack gives O(1) acquisition for the common acquire/release churn; a scan
// of the full table is the fallback once the cache is empty or stale.
func (lf *lockFile) acquireReaderSlot(pid uint32, tid uint64) (*readerSlot, int, error) {
	lf.freeMu.Lock()
	if len(lf.freeSlots) > 0 {
		idx := lf.freeSlots[len(lf.freeSlots)-1]
		lf.freeSlots = lf.freeSlots[:len(lf.freeSlots)-1]
		lf.freeMu.Unlock()

		slot := &lf.slots[idx]
		if claimFreeSlot(slot, pid, tid) {
			return slot, int(idx), nil
		}
	} else {
		lf.freeMu.Unlock()
	}

	for i := range lf.slots {
		slot := &lf.slots[i]
		if atomic.LoadUint64(&slot.txnid) == 0 && claimFreeSlot(slot, pid, tid) {
			return slot, i, nil
		}
	}

	return nil, -1, errLockReadersFull
}

func (lf *lockFile) releaseReaderSlot(slot *readerSlot, slotIdx int) {
	atomic.StoreUint64(&slot.txnid, 0)
	atomic.StoreUint64(&slot.tid, 0)
	atomic.StoreUint32(&slot.pid, 0)

	lf.freeMu.Lock()
	lf.freeSlots = append(lf.freeSlots, int32(slotIdx))
	lf.freeMu.Unlock()
}

func (lf *lockFile) setReaderTxnid(slot *readerSlot, txnid uint64) {
	atomic.StoreUint64(&slot.txnid, txnid)
}

// oldestReader scans every slot for the lowest live snapshot txnid — the
// point a writer's GC pass must not reclaim past — and caches the result
// in the lock header for cheap reuse between commits.
func (lf *lockFile) oldestReader() uint64 {
	oldest := ^uint64(0)
	for i := range lf.slots {
		if txnid := atomic.LoadUint64(&lf.slots[i].txnid); txnid > 0 && txnid != tidTxnParked && txnid < oldest {
			oldest = txnid
		}
	}
	atomic.StoreUint64(&lf.header.cachedOldest, oldest)
	return oldest
}

func (lf *lockFile) cachedOldestReader() uint64 {
	return atomic.LoadUint64(&lf.header.cachedOldest)
}

func (lf *lockFile) numActiveReaders() int {
	count := 0
	for i := range lf.slots {
		if txnid := atomic.LoadUint64(&lf.slots[i].txnid); txnid > 0 && txnid != tidTxnParked {
			count++
		}
	}
	return count
}

// cleanupStaleReaders frees slots whose owning process has exited without
// releasing them — a crashed reader otherwise pins GC forever.
func (lf *lockFile) cleanupStaleReaders() int {
	cleaned := 0
	myPID := uint32(os.Getpid())

	for i := range lf.slots {
		slot := &lf.slots[i]
		txnid := atomic.LoadUint64(&slot.txnid)
		if txnid == 0 || txnid == tidTxnParked {
			continue
		}

		pid := atomic.LoadUint32(&slot.pid)
		if pid == 0 || pid == myPID {
			continue
		}

		if !processExists(int(pid)) {
			atomic.StoreUint64(&slot.txnid, 0)
			cleaned++
		}
	}

	return cleaned
}

// processExists opens the process with query-only access: success means
// it's still alive, any error (commonly "no such process") means it's gone.
func processExists(pid int) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	windows.CloseHandle(handle)
	return true
}

// Lock file errors
var (
	errLockFileTooSmall = &lockError{"lock file too small", nil}
	errLockInvalidFile  = &lockError{"invalid lock file", nil}
	errLockReadersFull  = &lockError{"reader slots full", nil}
)

type lockError struct {
	op  string
	err error
}

func (e *lockError) Error() string {
	if e.err != nil {
		return "lock: " + e.op + ": " + e.err.Error()
	}
	return "lock: " + e.op
}

func (e *lockError) Unwrap() error {
	return e.err
}
