package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Input  string    `json:"input,omitempty"`
	Result Execution `json:"result"`
}

// TargetResult is what one compiler invocation produced for one source
// file. Golden files hold exactly this structure.
type TargetResult struct {
	Compile      Execution `json:"compile"`
	Assembly     string    `json:"assembly,omitempty"`
	AssemblyHash string    `json:"assembly_hash,omitempty"`
	Runs         []TestRun `json:"runs,omitempty"`
}

type FileTestResult struct {
	File     string        `json:"file"`
	Status   string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message  string        `json:"message,omitempty"`
	Diff     string        `json:"diff,omitempty"`
	Expected *TargetResult `json:"expected,omitempty"`
	Actual   *TargetResult `json:"actual,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	compiler       = flag.String("compiler", "./awc", "Path to the compiler under test.")
	compilerArgs   = flag.String("args", "", "Extra compiler arguments (space-separated).")
	simulator      = flag.String("spim", "spim", "Path to the SPIM simulator used to run the generated assembly.")
	generateGolden = flag.String("generate-golden", "", "Generate golden .json files for the given source file(s) (space-separated).")
	testFiles      = flag.String("test-files", "tests/*.alw", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each command execution.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
	ignoreLines    = flag.String("ignore-lines", "", "Comma-separated substrings to ignore during output comparison.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

const (
	sourcePlaceholder  = "__SOURCE__"
	outputPlaceholder  = "__OUTPUT__"
	listingPlaceholder = "__LISTING__"
)

// Inputs fed to every program that runs under the simulator. SPIM reads
// one integer per line for syscall 5.
var runInputs = map[string]string{
	"no_input": "",
	"small":    "3\n4\n5\n",
	"negative": "-7\n-1\n0\n",
}

var errCompile = errors.New("compilation failed")

func main() {
	flag.Parse()
	log.SetFlags(0)

	tempDir, err := os.MkdirTemp("", "gtest-*")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to create temp directory: %v\n", cRed, cNone, err)
	}
	defer os.RemoveAll(tempDir)
	setupInterruptHandler(tempDir)

	if *generateGolden != "" {
		for _, file := range strings.Fields(*generateGolden) {
			handleGenerateGolden(file, tempDir)
		}
		return
	}

	handleRunTestSuite(tempDir)
}

// setupInterruptHandler is used to clean up on CTRL+C
func setupInterruptHandler(tempDir string) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		os.RemoveAll(tempDir)
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled. Cleaning up...\n", cYellow, cNone)
		os.Exit(1)
	}()
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

func handleGenerateGolden(sourceFile, tempDir string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	fileHash, err := hashFile(sourceFile)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not hash source file %s: %v\n", cRed, cNone, sourceFile, err)
	}

	// A program the compiler rejects is still a valid golden: its
	// diagnostics and exit code are what gets pinned.
	result, err := compileAndRun(sourceFile, tempDir, fileHash)
	if err != nil && !errors.Is(err, errCompile) {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, sourceFile, err)
	}

	jsonData, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}

	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite(tempDir string) {
	if _, err := exec.LookPath(*simulator); err != nil && *verbose {
		log.Printf("%s[WARN]%s Simulator '%s' not found. Only compiler output and assembly will be compared.\n", cYellow, cNone, *simulator)
	}

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				resultsChan <- testFile(t.file, tempDir, t.hash)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] || skipList[filepath.Base(file)] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- task{file, fileHash}
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)

	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

func testFile(file, tempDir, fileHash string) *FileTestResult {
	goldenFile := getJSONPath(file)
	goldenData, err := os.ReadFile(goldenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return &FileTestResult{File: file, Status: "SKIP", Message: "Cannot test without a corresponding .json golden file"}
		}
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}

	var expected TargetResult
	if err := json.Unmarshal(goldenData, &expected); err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	actual, err := compileAndRun(file, tempDir, fileHash)
	if err != nil && !errors.Is(err, errCompile) {
		return &FileTestResult{File: file, Status: "ERROR", Message: err.Error(), Expected: &expected, Actual: actual}
	}

	return compareResults(file, &expected, actual)
}

func compareResults(file string, expected, actual *TargetResult) *FileTestResult {
	var diffs strings.Builder
	var failed bool

	ignored := []string{}
	if *ignoreLines != "" {
		ignored = strings.Split(*ignoreLines, ",")
	}

	compareExecution := func(what string, want, got Execution) {
		if want.ExitCode != got.ExitCode || want.TimedOut != got.TimedOut {
			failed = true
			diffs.WriteString(fmt.Sprintf("%s exit code mismatch:\n  - Expected: %d\n  - Actual:   %d\n", what, want.ExitCode, got.ExitCode))
		}
		if filterOutput(want.Stdout, ignored) != filterOutput(got.Stdout, ignored) {
			failed = true
			diffs.WriteString(fmt.Sprintf("%s STDOUT mismatch:\n%s", what, cmp.Diff(want.Stdout, got.Stdout)))
		}
		if filterOutput(want.Stderr, ignored) != filterOutput(got.Stderr, ignored) {
			failed = true
			diffs.WriteString(fmt.Sprintf("%s STDERR mismatch:\n%s", what, cmp.Diff(want.Stderr, got.Stderr)))
		}
	}

	compareExecution("Compile", expected.Compile, actual.Compile)

	if expected.AssemblyHash != actual.AssemblyHash {
		failed = true
		diffs.WriteString(fmt.Sprintf("Assembly mismatch:\n%s", cmp.Diff(
			strings.Split(expected.Assembly, "\n"),
			strings.Split(actual.Assembly, "\n"))))
	}

	// Runs are only compared when both sides had a simulator.
	if len(expected.Runs) > 0 && len(actual.Runs) > 0 {
		actualRuns := make(map[string]TestRun, len(actual.Runs))
		for _, run := range actual.Runs {
			actualRuns[run.Name] = run
		}
		for _, want := range expected.Runs {
			got, ok := actualRuns[want.Name]
			if !ok {
				failed = true
				diffs.WriteString(fmt.Sprintf("Test run '%s' missing in actual results.\n", want.Name))
				continue
			}
			compareExecution(fmt.Sprintf("Run '%s'", want.Name), want.Result, got.Result)
		}
	}

	if failed {
		return &FileTestResult{
			File:     file,
			Status:   "FAIL",
			Message:  "Compiler output, assembly or runtime output mismatch",
			Diff:     diffs.String(),
			Expected: expected,
			Actual:   actual,
		}
	}
	return &FileTestResult{File: file, Status: "PASS", Message: "All checks passed", Expected: expected, Actual: actual}
}

// executeCommand runs a command with a timeout and captures its output, optionally piping data to stdin
func executeCommand(ctx context.Context, command string, stdinData string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdinData != "" {
		cmd.Stdin = strings.NewReader(stdinData)
	}

	err := cmd.Run()
	execResult := Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(startTime),
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		execResult.TimedOut = true
		execResult.ExitCode = -1
	case errors.As(err, &exitErr):
		execResult.ExitCode = exitErr.ExitCode()
	case err != nil:
		execResult.ExitCode = -2
		execResult.Stderr += "\nExecution error: " + err.Error()
	}
	return execResult
}

// compileAndRun compiles sourceFile into tempDir and, when the simulator is
// available and assembly was produced, runs it once per entry of runInputs.
// Paths are replaced by placeholders so results are comparable across
// machines.
func compileAndRun(sourceFile, tempDir, fileHash string) (*TargetResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	asmPath := filepath.Join(tempDir, fileHash+".s")
	listingPath := filepath.Join(tempDir, fileHash+".lst")
	args := []string{"-o", asmPath, "-l", listingPath}
	args = append(args, strings.Fields(*compilerArgs)...)
	args = append(args, sourceFile)

	compileResult := executeCommand(ctx, *compiler, "", args...)
	normalize := strings.NewReplacer(sourceFile, sourcePlaceholder, asmPath, outputPlaceholder, listingPath, listingPlaceholder)
	compileResult.Stdout = normalize.Replace(compileResult.Stdout)
	compileResult.Stderr = normalize.Replace(compileResult.Stderr)
	result := &TargetResult{Compile: compileResult}

	asm, err := os.ReadFile(asmPath)
	switch {
	case err == nil:
		result.Assembly = string(asm)
		result.AssemblyHash = fmt.Sprintf("%x", xxhash.Sum64(asm))
	case !os.IsNotExist(err):
		return result, fmt.Errorf("reading generated assembly: %w", err)
	}

	if compileResult.ExitCode != 0 || compileResult.TimedOut {
		return result, fmt.Errorf("%w with exit code %d", errCompile, compileResult.ExitCode)
	}
	if result.Assembly == "" {
		return result, fmt.Errorf("compilation succeeded but no assembly was written to %s", asmPath)
	}

	if _, err := exec.LookPath(*simulator); err != nil {
		return result, nil
	}

	names := make([]string, 0, len(runInputs))
	for name := range runInputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		runCtx, runCancel := context.WithTimeout(context.Background(), *timeout)
		run := executeCommand(runCtx, *simulator, runInputs[name], "-file", asmPath)
		runCancel()
		run.Stdout = normalize.Replace(run.Stdout)
		run.Stderr = normalize.Replace(run.Stderr)
		result.Runs = append(result.Runs, TestRun{Name: name, Input: runInputs[name], Result: run})
	}
	return result, nil
}

// filterOutput removes lines containing any of the given substrings
func filterOutput(output string, ignoredSubstrings []string) string {
	if len(ignoredSubstrings) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	filteredLines := make([]string, 0, len(lines))
	for _, line := range lines {
		ignore := false
		for _, sub := range ignoredSubstrings {
			if sub != "" && strings.Contains(line, sub) {
				ignore = true
				break
			}
		}
		if !ignore {
			filteredLines = append(filteredLines, line)
		}
	}
	return strings.Join(filteredLines, "\n")
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var totalCompile time.Duration
	var compiled int

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if result.Actual != nil {
			compiled++
			totalCompile += result.Actual.Compile.Duration
			if *verbose {
				fmt.Printf("  compile: %s\n", formatDuration(result.Actual.Compile.Duration))
				for _, run := range result.Actual.Runs {
					fmt.Printf("  run %-10s %s (exit %d)\n", run.Name, formatDuration(run.Result.Duration), run.Result.ExitCode)
				}
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	if compiled > 0 {
		fmt.Printf("Average compile time: %s\n", formatDuration(totalCompile/time.Duration(compiled)))
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
