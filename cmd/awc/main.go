package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xplshn/awc/pkg/cli"
	"github.com/xplshn/awc/pkg/config"
	"github.com/xplshn/awc/pkg/lexer"
	"github.com/xplshn/awc/pkg/parser"
	"github.com/xplshn/awc/pkg/token"
	"github.com/xplshn/awc/pkg/util"
)

var errTranslation = errors.New("translation failed")

func main() {
	app := cli.NewApp("awc")
	app.Synopsis = "[options] <input.alw>"
	app.Description = "A single-pass compiler for a small Algol-W subset. Emits MIPS assembly for the SPIM and MARS simulators."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/awc>"

	var (
		outFile        string
		listingFile    string
		dumpTokens     bool
		dumpSymbols    bool
		dumpDerivation bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", config.DefaultOutput, "Place the assembly into <file>.", "file")
	fs.String(&listingFile, "listing", "l", "", "Write a numbered source listing to <file>.", "file")
	fs.Bool(&dumpTokens, "tokens", "t", false, "Print the token stream.")
	fs.Bool(&dumpSymbols, "dump-symbols", "s", false, "Print the symbol table after translation.")
	fs.Bool(&dumpDerivation, "derivation", "d", false, "Print the leftmost derivation.")

	cfg := config.NewConfig()
	if env := os.Getenv("AWCFLAGS"); env != "" {
		if err := cfg.ProcessDirectiveFlags(env); err != nil {
			util.Error(token.Token{FileIndex: -1}, "AWCFLAGS: %v", err)
		}
	}
	cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if err := cfg.ApplyFlags(fs); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}
		cfg.OutputPath = outFile

		if len(inputFiles) != 1 {
			util.Error(token.Token{FileIndex: -1}, "expected exactly one input file, got %d", len(inputFiles))
		}
		path := inputFiles[0]
		if filepath.Ext(path) != ".alw" {
			util.Warn(cfg, config.WarnExtra, token.Token{FileIndex: -1}, "input '%s' does not have the .alw extension", path)
		}

		content, err := os.ReadFile(path)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "could not read file '%s': %v", path, err)
		}
		source := []rune(string(content))
		util.SetSourceFiles([]util.SourceFileRecord{{Name: path, Content: source}})

		fmt.Printf("Scanning %s...\n", path)
		l := lexer.NewLexer(source, 0, cfg)
		tokens := l.All()
		for _, e := range l.Errors() {
			util.Warn(cfg, config.WarnUnknownChar, e.Tok, "%s", e.Msg)
		}
		if dumpTokens {
			fmt.Println("Tokens:")
			for _, tok := range tokens {
				fmt.Printf("  %d:%d\t%s\n", tok.Line, tok.Column, tok)
			}
		}

		fmt.Println("Translating...")
		tr := parser.Translate(parser.NewSliceSource(tokens), cfg)
		for _, d := range tr.Diagnostics() {
			util.Report(d.Tok, "%s [%s]", d.Msg, d.Kind)
		}

		if dumpSymbols {
			fmt.Println("Symbol Table:")
			fmt.Print(tr.Symbols())
		}
		if dumpDerivation {
			fmt.Println("Leftmost Derivation:")
			fmt.Println(tr.DerivationString())
			if trace := tr.Trace(); trace != "" {
				fmt.Println(trace)
			}
		}

		if listingFile != "" {
			if err := writeListing(listingFile, l, tr); err != nil {
				util.Error(token.Token{FileIndex: -1}, "%v", err)
			}
		}

		if tr.ShouldFlush() {
			fmt.Printf("Writing '%s'...\n", cfg.OutputPath)
			if err := writeOutput(cfg.OutputPath, tr); err != nil {
				util.Error(token.Token{FileIndex: -1}, "%v", err)
			}
		}

		if !tr.OK() {
			fmt.Println("FAIL")
			return errTranslation
		}
		fmt.Println("SUCCESS")
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func writeOutput(path string, tr *parser.Translator) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create '%s': %w", path, err)
	}
	if _, err := tr.Flush(f); err != nil {
		f.Close()
		return fmt.Errorf("could not write '%s': %w", path, err)
	}
	return f.Close()
}

// writeListing writes every source line prefixed by its number, followed by
// the lexical and translation errors.
func writeListing(path string, l *lexer.Lexer, tr *parser.Translator) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create listing '%s': %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, line := range l.Lines() {
		fmt.Fprintf(w, "%d %s\n", i+1, line)
	}
	fmt.Fprintln(w)
	for _, e := range l.Errors() {
		fmt.Fprintf(w, "lexical error: %v\n", e)
	}
	fmt.Fprint(w, tr.Errors())
	fmt.Fprintf(w, "\n%s\n", tr.DerivationString())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("could not write listing '%s': %w", path, err)
	}
	return nil
}
