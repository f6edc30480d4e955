// Package mxdb implements an embedded, memory-mapped, transactional
// key/value store. It reads and writes the on-disk page and meta-page
// layout used by libmdbx, so a store opened by mxdb can be produced or
// consumed by a C libmdbx binary and vice versa.
//
// The store is single-writer/many-reader: writers serialize on one
// mutex per environment while readers attach to a snapshot published in
// the shared lock file and never block the writer or each other. All
// mutation is copy-on-write over a B+tree; there is no write-ahead log.
//
//   - B+tree storage with branch/leaf/overflow/subpage node kinds
//   - MVCC snapshots via a reader-slot registry in the lock file
//   - Two-phase meta-page commit for crash safety
//   - Duplicate-sort sub-trees (DUPSORT) with sub-page/sub-DB promotion
//   - Free-DB backed page reclamation bounded by the oldest live reader
//
// A minimal session:
//
//	env, err := mxdb.NewEnv(mxdb.Label("orders"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	if err := env.Open("/var/lib/orders.mxdb", mxdb.NoSubdir|mxdb.Create, 0644); err != nil {
//	    log.Fatal(err)
//	}
//
//	txn, err := env.BeginTxn(nil, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dbi, err := txn.OpenDBI("", mxdb.Create, nil, nil)
//	if err != nil {
//	    txn.Abort()
//	    log.Fatal(err)
//	}
//
//	if err := txn.Put(dbi, []byte("key"), []byte("value"), 0); err != nil {
//	    txn.Abort()
//	    log.Fatal(err)
//	}
//
//	if _, err := txn.Commit(); err != nil {
//	    log.Fatal(err)
//	}
//
// Logging (package log), Prometheus metrics (package metrics) and a
// YAML-driven environment configuration (package config) sit alongside
// the storage engine itself and are opt-in — the engine works without
// any of them wired up.
package mxdb
