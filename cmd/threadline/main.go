package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/samhotchkiss/threadline/internal/chunker"
	"github.com/samhotchkiss/threadline/internal/config"
)

func main() {
	limit := flag.Int("limit", 0, "character limit per chunk (default from CHUNK_LIMIT or 280)")
	template := flag.String("template", "", "numbering template with {i} and {n} (default from CHUNK_NUMBERING_TEMPLATE or {i}/{n})")
	export := flag.Bool("export", false, "print chunks joined by the export separator instead of a numbered listing")
	stats := flag.Bool("stats", false, "print thread statistics after the chunks")
	flag.Usage = usage
	flag.Parse()

	text, err := readInput(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadline: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadline: %v\n", err)
		os.Exit(1)
	}

	opts := chunker.Options{Limit: cfg.Chunk.Limit, Template: cfg.Chunk.Template}
	if *limit > 0 {
		opts.Limit = *limit
	}
	if *template != "" {
		opts.Template = *template
	}

	thread, err := chunker.Split(text, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "threadline: %v\n", err)
		os.Exit(1)
	}

	if thread.Empty() {
		fmt.Fprintln(os.Stderr, "threadline: no content to chunk")
		os.Exit(1)
	}

	if *export {
		fmt.Println(chunker.Export(thread, chunker.DefaultExportSeparator))
	} else {
		for _, chunk := range thread.Chunks {
			fmt.Printf("[%d] (%d chars)\n%s\n\n", chunk.Index, chunk.Length, chunk.Text)
		}
	}

	for _, warning := range thread.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	if *stats {
		printStats(chunker.Stats(thread, opts.Limit))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `threadline [flags] [file]

Chunks text into a numbered thread. Reads from the file argument, or
from stdin when no file is given.

Flags:
  -limit n       character limit per chunk
  -template s    numbering template containing {i} and {n}
  -export        print chunks joined by the export separator
  -stats         print thread statistics`)
}

func readInput(args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("expected at most one file argument")
	}
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func printStats(s chunker.ThreadStats) {
	fmt.Printf("chunks: %d  characters: %d  avg: %.1f  max: %d  min: %d\n",
		s.TotalChunks, s.TotalCharacters, s.AvgLength, s.MaxLength, s.MinLength)
}
