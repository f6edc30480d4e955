// Command mxdbstat prints environment info, main-database stats, the stats
// of one named sub-database (-s) and the reader table for an mxdb data
// file; it prints no freelist details — the "stat" tool
// named alongside "dump" as part of the distribution but outside the
// storage engine itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andrelio/mxdb"
)

type options struct {
	all      bool
	dbName   string
	noSubdir bool
	envInfo  bool
	readers  int // 0 = none, 1 = -r, 2 = -rr (clear stale)
	version  bool
}

func parseFlags() (options, string) {
	var o options
	flag.BoolVar(&o.all, "a", false, "accepted; prints nothing beyond the main database stats (named databases are not listed)")
	flag.StringVar(&o.dbName, "s", "", "print stats for the named sub-database")
	flag.BoolVar(&o.noSubdir, "n", false, "data file is not inside a directory")
	flag.BoolVar(&o.envInfo, "e", false, "print environment info")
	flag.BoolVar(&o.version, "V", false, "print version and exit")
	r := flag.Bool("r", false, "print reader table")
	rr := flag.Bool("rr", false, "print reader table and clear stale readers")
	flag.Parse()

	if *rr {
		o.readers = 2
	} else if *r {
		o.readers = 1
	}

	return o, flag.Arg(0)
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, path := parseFlags()

	if opts.version {
		fmt.Println(mxdb.Version())
		return 0
	}

	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: mxdbstat [-a] [-s name] [-n] [-e] [-r|-rr] [-V] path")
		return 2
	}

	env, err := mxdb.NewEnv(mxdb.Label(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "mxdbstat: %v\n", err)
		return 1
	}
	defer env.Close()

	openFlags := uint(mxdb.ReadOnly)
	if opts.noSubdir {
		openFlags |= mxdb.NoSubdir
	}
	if err := env.Open(path, openFlags, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "mxdbstat: open %s: %v\n", path, err)
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if opts.envInfo {
		if err := printEnvInfo(w, env); err != nil {
			fmt.Fprintf(os.Stderr, "mxdbstat: %v\n", err)
			return 1
		}
	}

	if err := printMainStat(w, env, opts); err != nil {
		fmt.Fprintf(os.Stderr, "mxdbstat: %v\n", err)
		return 1
	}

	if opts.readers > 0 {
		if err := printReaders(w, env, opts.readers == 2); err != nil {
			fmt.Fprintf(os.Stderr, "mxdbstat: %v\n", err)
			return 1
		}
	}

	return 0
}

func printEnvInfo(w *tabwriter.Writer, env *mxdb.Env) error {
	info, err := env.Info(nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Map size:\t%d\n", info.MapSize)
	fmt.Fprintf(w, "Page size:\t%d\n", info.PageSize)
	fmt.Fprintf(w, "Last txnid:\t%d\n", info.LastTxnID)
	fmt.Fprintf(w, "Max readers:\t%d\n", info.MaxReaders)
	fmt.Fprintf(w, "Geometry lower:\t%d\n", info.Geo.Lower)
	fmt.Fprintf(w, "Geometry upper:\t%d\n", info.Geo.Upper)
	fmt.Fprintf(w, "Geometry current:\t%d\n", info.Geo.Current)
	return nil
}

func printMainStat(w *tabwriter.Writer, env *mxdb.Env, opts options) error {
	stat, err := env.Stat()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Tree depth:\t%d\n", stat.Depth)
	fmt.Fprintf(w, "Branch pages:\t%d\n", stat.BranchPages)
	fmt.Fprintf(w, "Leaf pages:\t%d\n", stat.LeafPages)
	fmt.Fprintf(w, "Overflow pages:\t%d\n", stat.OverflowPages)
	fmt.Fprintf(w, "Entries:\t%d\n", stat.Entries)

	if !opts.all && opts.dbName == "" {
		return nil
	}

	txn, err := env.BeginTxn(nil, mxdb.TxnReadOnly)
	if err != nil {
		return err
	}
	defer txn.Abort()

	if opts.dbName != "" {
		dbi, err := txn.OpenDBI(opts.dbName, 0, nil, nil)
		if err != nil {
			return fmt.Errorf("open db %q: %w", opts.dbName, err)
		}
		dbStat, err := txn.Stat(dbi)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n[%s]\n", opts.dbName)
		fmt.Fprintf(w, "Entries:\t%d\n", dbStat.Entries)
		fmt.Fprintf(w, "Depth:\t%d\n", dbStat.Depth)
	}

	return nil
}

func printReaders(w *tabwriter.Writer, env *mxdb.Env, clearStale bool) error {
	fmt.Fprintln(w, "\nslot\tpid\ttxnid")
	err := env.ReaderList(func(info mxdb.ReaderInfo) error {
		fmt.Fprintf(w, "%d\t%d\t%d\n", info.Slot, info.PID, info.TxnID)
		return nil
	})
	if err != nil {
		return err
	}

	if clearStale {
		n, err := env.ReaderCheck()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\ncleared %d stale readers\n", n)
	}
	return nil
}
