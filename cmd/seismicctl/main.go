// Command seismicctl is the operator-facing inspector for on-disk
// clustered-posting codec files (C12): it enumerates `<segment>_<suffix>.st/.sp`
// pairs in a directory and lets an operator run ad-hoc term lookups
// without writing a one-off program.
//
// Grounded on the teacher's cmd/cli/cli/object.go (a thin CLI command
// wired directly to the core library, no business logic of its own).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/tidwall/buntdb"

	"github.com/sparseann/seismic/sparse/codec"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "list":
		runList(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: seismicctl <list|inspect> [flags]")
}

// runList walks a directory and prints every discovered (segment,
// suffix) codec file pair.
func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dir := fs.String("dir", ".", "directory to scan for codec file pairs")
	fs.Parse(args)

	pairs, err := findPairs(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seismicctl list: %v\n", err)
		os.Exit(1)
	}
	for _, p := range pairs {
		fmt.Printf("%s  (terms=%s postings=%s)\n", p.name, p.termsPath, p.postingsPath)
	}
}

// runInspect opens one codec file pair, loads its term dictionary into
// an in-memory buntdb index (so the operator can range/prefix-query
// terms), and prints cluster/summary stats for either a specific term
// or every term.
func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dir := fs.String("dir", ".", "directory containing the codec file pair")
	name := fs.String("name", "", "codec file pair base name, e.g. 0001_ann")
	field := fs.Uint("field", 0, "field number to inspect")
	term := fs.String("term", "", "inspect a single term (default: all terms matching -prefix)")
	prefix := fs.String("prefix", "", "only inspect terms with this prefix")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "seismicctl inspect: -name is required")
		os.Exit(2)
	}

	termsPath := filepath.Join(*dir, *name+".st")
	postingsPath := filepath.Join(*dir, *name+".sp")

	r, err := codec.Open(termsPath, postingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seismicctl inspect: open: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	terms, err := indexTerms(r, uint32(*field), *term, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seismicctl inspect: %v\n", err)
		os.Exit(1)
	}
	for _, t := range terms {
		clusters, ok, err := r.Read(uint32(*field), t)
		if err != nil {
			fmt.Fprintf(os.Stderr, "seismicctl inspect: read %q: %v\n", t, err)
			continue
		}
		if !ok {
			continue
		}
		var members, summaryBytes int
		for _, c := range clusters {
			members += len(c.Members)
			summaryBytes += c.Summary.Len()
		}
		fmt.Printf("%s: clusters=%d members=%d summary_coords=%d\n", t, len(clusters), members, summaryBytes)
	}
}

// indexTerms loads candidate terms into a throwaway in-memory buntdb
// database so prefix queries run through buntdb's ordered index instead
// of a manual scan — the point of wiring it in for an operator tool that
// otherwise has no storage engine of its own.
func indexTerms(r *codec.Reader, field uint32, term, prefix string) ([]string, error) {
	if term != "" {
		return []string{term}, nil
	}

	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("buntdb open: %w", err)
	}
	defer db.Close()

	known := r.KnownTerms(field)
	err = db.Update(func(tx *buntdb.Tx) error {
		for _, t := range known {
			if _, _, err := tx.Set(t, "1", nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("buntdb index: %w", err)
	}

	var out []string
	err = db.View(func(tx *buntdb.Tx) error {
		return tx.AscendGreaterOrEqual("", prefix, func(key, _ string) bool {
			if !strings.HasPrefix(key, prefix) {
				return false
			}
			out = append(out, key)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("buntdb query: %w", err)
	}
	return out, nil
}

type codecPair struct {
	name         string
	termsPath    string
	postingsPath string
}

// findPairs walks dir with godirwalk and groups ".st"/".sp" files that
// share a base name into pairs.
func findPairs(dir string) ([]codecPair, error) {
	bases := make(map[string]*codecPair)
	var order []string

	err := godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".st" && ext != ".sp" {
				return nil
			}
			base := strings.TrimSuffix(path, ext)
			p, ok := bases[base]
			if !ok {
				p = &codecPair{name: filepath.Base(base)}
				bases[base] = p
				order = append(order, base)
			}
			if ext == ".st" {
				p.termsPath = path
			} else {
				p.postingsPath = path
			}
			return nil
		},
		Unsorted: false,
	})
	if err != nil {
		return nil, err
	}

	out := make([]codecPair, 0, len(order))
	for _, base := range order {
		p := bases[base]
		if p.termsPath != "" && p.postingsPath != "" {
			out = append(out, *p)
		}
	}
	return out, nil
}
