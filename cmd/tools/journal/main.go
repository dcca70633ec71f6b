package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"backtest/internal/journal"
)

func main() {
	dump := flag.Bool("dump", false, "Print every record instead of the summary")
	compare := flag.String("compare", "", "Second journal to compare digests against")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: journal [-dump] [-compare other.btj] <journal>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	summary, err := inspect(path, *dump)
	if err != nil {
		log.Fatalf("inspect %s: %v", path, err)
	}
	printSummary(path, summary)

	if *compare != "" {
		other, err := inspect(*compare, false)
		if err != nil {
			log.Fatalf("inspect %s: %v", *compare, err)
		}
		printSummary(*compare, other)
		if summary.digest != other.digest {
			log.Fatalf("digest mismatch: %08x vs %08x", summary.digest, other.digest)
		}
		if summary.records != other.records {
			log.Fatalf("record count mismatch: %d vs %d", summary.records, other.records)
		}
		fmt.Println("journals match")
	}
}

type summary struct {
	records uint64
	digest  uint32
	firstTs int64
	lastTs  int64
	byType  map[journal.RecordType]uint64
}

func inspect(path string, dump bool) (summary, error) {
	r, err := journal.Open(path)
	if err != nil {
		return summary{}, err
	}
	defer r.Close()

	s := summary{byType: make(map[journal.RecordType]uint64)}
	var digest journal.Digest
	for {
		rec, err := r.Next()
		if err == io.EOF {
			s.digest = digest.Sum()
			return s, nil
		}
		if err != nil {
			return summary{}, err
		}
		digest.Add(rec.Type, rec.TsEvent, rec.Payload)
		if s.records == 0 {
			s.firstTs = rec.TsEvent
		}
		s.lastTs = rec.TsEvent
		s.records++
		s.byType[rec.Type]++
		if dump {
			fmt.Printf("%8d %-13s ts=%d payload=%s\n", rec.Seq, rec.Type, rec.TsEvent, rec.Payload)
		}
	}
}

func printSummary(path string, s summary) {
	fmt.Printf("%s: records=%d digest=%08x span=[%d, %d]\n",
		path, s.records, s.digest, s.firstTs, s.lastTs)
	types := make([]journal.RecordType, 0, len(s.byType))
	for t := range s.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Printf("  %-13s %d\n", t, s.byType[t])
	}
}
