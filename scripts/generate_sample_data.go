//go:build ignore

// Generates a synthetic bank marketing file for local training runs:
//
//	go run scripts/generate_sample_data.go -rows 5000 -out data/dataset.csv
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"term-deposit/internal/dataset"
	"term-deposit/internal/features"
)

func main() {
	var (
		out  = flag.String("out", "data/dataset.csv", "Output file")
		rows = flag.Int("rows", 4521, "Number of rows to generate")
		seed = flag.Int64("seed", 42, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating %d rows into %s (seed %d)...\n", *rows, *out, *seed)

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	defer f.Close()

	ds := dataset.Synthetic(*rows, *seed)
	w := bufio.NewWriter(f)
	if err := dataset.WriteCSV(w, ds, features.BankMarketingSchema()); err != nil {
		log.Fatalf("Failed to write dataset: %v", err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("Failed to flush dataset: %v", err)
	}

	fmt.Printf("Done: %d rows, %d subscribed (%.1f%%)\n",
		ds.Len(), ds.Positives(), 100*float64(ds.Positives())/float64(ds.Len()))
}
