package mxdb

// DBI is a database handle (index into environment's database array).
type DBI uint32

// Drop deletes all data in a database, or deletes the database entirely.
// If del is true, the database is deleted; otherwise it is emptied.
func (txn *Txn) Drop(dbi DBI, del bool) error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}

	if txn.IsReadOnly() {
		return NewError(ErrPermissionDenied)
	}

	if dbi < CoreDBs {
		return NewError(ErrInvalid) // Can't drop core DBs
	}

	if int(dbi) >= len(txn.trees) {
		return NewError(ErrBadDBI)
	}

	// Walk every page reachable from the tree's root and feed it through
	// the same freelist path cursor deletes use, so the space is
	// actually reclaimed instead of merely forgotten.
	if root := txn.trees[dbi].Root; root != invalidPgno {
		pages, err := txn.collectTreePages(root)
		if err != nil {
			return err
		}
		txn.freePages = append(txn.freePages, pages...)
	}

	txn.trees[dbi].reset()

	// Mark the tree as dirty so it gets persisted
	if txn.dbiDirty == nil {
		txn.dbiDirty = make([]bool, len(txn.trees))
	}
	if int(dbi) < len(txn.dbiDirty) {
		txn.dbiDirty[dbi] = true
	}

	if del {
		// Remove from environment's DBI list
		txn.env.dbisMu.Lock()
		txn.env.dbis[dbi] = nil
		txn.env.dbisMu.Unlock()
	}

	return nil
}

// collectTreePages walks every page reachable from root (branch, leaf,
// overflow runs, and duplicate-sort sub-trees) and returns their page
// numbers. Used by Drop to return a whole database's storage to the
// freelist in one step.
func (txn *Txn) collectTreePages(root pgno) ([]pgno, error) {
	var pages []pgno
	var walk func(pn pgno) error
	walk = func(pn pgno) error {
		if pn == invalidPgno {
			return nil
		}
		p, err := txn.getPage(pn)
		if err != nil {
			return err
		}
		pages = append(pages, pn)

		switch {
		case p.isBranch():
			n := p.numEntries()
			for i := 0; i < n; i++ {
				child := nodeFromPage(p, i)
				if err := walk(child.childPgno()); err != nil {
					return err
				}
			}
		case p.isLeaf():
			n := p.numEntries()
			for i := 0; i < n; i++ {
				nd := nodeFromPage(p, i)
				switch {
				case nd.isBig():
					ovPgno := nd.overflowPgno()
					// The first overflow page itself carries the
					// authoritative run length (page.go's
					// setOverflowPages, written at allocation time) —
					// reading it here instead of re-deriving a page
					// count from dataSize avoids the two formulas
					// disagreeing at a boundary size.
					ovPage, err := txn.getPage(ovPgno)
					if err != nil {
						return err
					}
					ovPages := ovPage.overflowPages()
					for j := uint32(0); j < ovPages; j++ {
						pages = append(pages, ovPgno+pgno(j))
					}
				case nd.isTree():
					sub := parseTreeFromBytes(nd.nodeData())
					if sub != nil {
						if err := walk(sub.Root); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return pages, nil
}

// DBIFlags returns the flags for a database.
func (txn *Txn) DBIFlags(dbi DBI) (uint, error) {
	if !txn.valid() {
		return 0, NewError(ErrBadTxn)
	}

	if int(dbi) >= len(txn.trees) {
		return 0, NewError(ErrBadDBI)
	}

	return uint(txn.trees[dbi].Flags), nil
}

// Sequence gets or updates the sequence number for a database.
// If increment > 0, adds to the sequence and returns the value it had before the increment.
// If increment == 0, returns the current value without changing it.
func (txn *Txn) Sequence(dbi DBI, increment uint64) (uint64, error) {
	if !txn.valid() {
		return 0, NewError(ErrBadTxn)
	}

	if int(dbi) >= len(txn.trees) {
		return 0, NewError(ErrBadDBI)
	}

	if increment > 0 && txn.IsReadOnly() {
		return 0, NewError(ErrPermissionDenied)
	}

	t := &txn.trees[dbi]
	result := t.Sequence

	if increment > 0 {
		t.Sequence += increment
	}

	return result, nil
}

// SetCompare sets a custom key comparison function for a database.
// Must be called before any data operations on the database.
func (e *Env) SetCompare(dbi DBI, cmp func(a, b []byte) int) error {
	if !e.valid() {
		return NewError(ErrInvalid)
	}

	e.dbisMu.Lock()
	defer e.dbisMu.Unlock()

	if int(dbi) >= len(e.dbis) {
		return NewError(ErrBadDBI)
	}

	if e.dbis[dbi] == nil {
		e.dbis[dbi] = &dbiInfo{}
	}
	e.dbis[dbi].cmp = cmp

	return nil
}

// SetDupCompare sets a custom data comparison function for DUPSORT databases.
// Must be called before any data operations on the database.
func (e *Env) SetDupCompare(dbi DBI, cmp func(a, b []byte) int) error {
	if !e.valid() {
		return NewError(ErrInvalid)
	}

	e.dbisMu.Lock()
	defer e.dbisMu.Unlock()

	if int(dbi) >= len(e.dbis) {
		return NewError(ErrBadDBI)
	}

	if e.dbis[dbi] == nil {
		e.dbis[dbi] = &dbiInfo{}
	}
	e.dbis[dbi].dcmp = cmp

	return nil
}

// DBIStat is an alias for the Stat method for compatibility.
func (txn *Txn) DBIStat(dbi DBI) (*Stat, error) {
	return txn.Stat(dbi)
}
