package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jerbob92/wazero-dispatch/generator/generator"
)

var (
	fileName string
	output   *string
	verbose  *bool
)

func init() {
	fileName = os.Getenv("GOFILE")
	output = flag.String("o", "dispatch_gen.go", "the file to write the class declarations to")
	verbose = flag.Bool("v", false, "enable verbose logging")
}

func Usage() {
	fmt.Fprintf(os.Stderr, "Usage of wazero-dispatch/generator:\n")
	fmt.Fprintf(os.Stderr, "\t//go:generate go run github.com/jerbob92/wazero-dispatch/generator [-o file] [-v]\n\n")
	fmt.Fprintf(os.Stderr, "Declares every type annotated with //dispatch:class in the current package.\n\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = Usage
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	dir, err := filepath.Abs(".")
	if err != nil {
		logger.Error("could not resolve working directory", "error", err)
		os.Exit(1)
	}

	if err := generator.Generate(dir, fileName, *output, logger); err != nil {
		logger.Error("could not generate class declarations", "error", err)
		os.Exit(1)
	}
}
