// =============================================================================
// NFS-e Tax Audit - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the audit runs:
//   - File discovery in natural order
//   - Directory management
//   - Output file naming
//   - Summary log generation
//
// Inputs are never moved or modified; a run only writes into the output
// directory.
//
// =============================================================================

package utils

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/maruel/natural"
	"github.com/rs/zerolog"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for a run.
type FileManager struct {
	// InputDir is scanned when no input paths are given.
	InputDir string

	// OutputDir receives exports and summary logs.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir string) *FileManager {
	return &FileManager{
		InputDir:  inputDir,
		OutputDir: outputDir,
	}
}

// EnsureOutputDir creates the output directory if it doesn't exist.
func (fm *FileManager) EnsureOutputDir() error {
	if err := os.MkdirAll(fm.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.OutputDir, err)
	}
	return nil
}

// OutputPath joins a file name onto the output directory.
func (fm *FileManager) OutputPath(name string) string {
	return filepath.Join(fm.OutputDir, name)
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// ListFiles returns the regular files under dir, recursively, in natural
// order ("nota2.xml" before "nota10.xml").
//
// PARAMETERS:
//   - dir: The directory to scan.
//   - extensions: Extensions to keep, e.g. ".xml". Matching ignores case.
//     None keeps every file.
//
// RETURNS:
//   - A slice of file paths.
//   - An error if dir cannot be walked or ctx is cancelled. Unreadable
//     entries below dir are logged and skipped.
func ListFiles(ctx context.Context, dir string, extensions ...string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			if p == dir {
				return err
			}
			zerolog.Ctx(ctx).Warn().Str("path", p).Err(err).Msg("skipping path")
			return nil
		}
		if !d.Type().IsRegular() || !hasExtension(p, extensions) {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Sort(natural.StringSlice(files))
	return files, nil
}

// DiscoverInputFiles lists the XML files and ZIP archives in the input
// directory.
func (fm *FileManager) DiscoverInputFiles(ctx context.Context) ([]string, error) {
	return ListFiles(ctx, fm.InputDir, ".xml", ".zip")
}

func hasExtension(p string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(p)
	for _, e := range extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName expands an output name pattern.
//
// PARAMETERS:
//   - pattern: The format string for the file name.
//     Placeholders:
//       {uuid}      - A random UUID
//       {timestamp} - Timestamp (YYYYMMDD_HHMMSS)
//       {date}      - Date (YYYYMMDD)
//       {time}      - Time (HHMMSS)
//       {label}     - The run label, slugified
//       {ext}       - The output extension
//   - label: Free text describing the run, e.g. a client or month.
//   - ext: The output extension without the dot. It is appended when the
//     expanded name does not already end with it.
//   - now: The run time.
//
// RETURNS:
//   - The generated file name.
//
// EXAMPLE:
//   pattern: "auditoria_{label}_{timestamp}.{ext}"
//   label:   "Março 2024"
//   output:  "auditoria_marco-2024_20240315_143022.xlsx"
func GenerateOutputFileName(pattern, label, ext string, now time.Time) string {
	replacements := []string{
		"{uuid}", uuid.New().String(),
		"{timestamp}", now.Format("20060102_150405"),
		"{date}", now.Format("20060102"),
		"{time}", now.Format("150405"),
		"{label}", slug.Make(label),
		"{ext}", ext,
	}
	result := strings.NewReplacer(replacements...).Replace(pattern)

	// an empty label leaves separators behind
	result = strings.ReplaceAll(result, "__", "_")
	result = strings.ReplaceAll(result, "_.", ".")

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), "."+strings.ToLower(ext)) {
		result += "." + ext
	}
	return filepath.Base(result)
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a run.
type ProcessingSummary struct {
	StartTime  time.Time
	EndTime    time.Time
	Inputs     []string
	OutputFile string
	Processed  int
	Divergent  int
	Skipped    []types.Skip
}

// NewProcessingSummary fills the counters from a finished table.
func NewProcessingSummary(start, end time.Time, inputs []string, output string, t *types.Table) ProcessingSummary {
	s := ProcessingSummary{
		StartTime:  start,
		EndTime:    end,
		Inputs:     inputs,
		OutputFile: output,
		Processed:  t.Processed(),
		Skipped:    t.Skipped,
	}
	for i := range t.Records {
		if t.Records[i].Diagnostico == types.Divergent {
			s.Divergent++
		}
	}
	return s
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (path string, err error) {
	name := fmt.Sprintf("resumo_%s.txt", summary.EndTime.Format("20060102_150405"))
	path = filepath.Join(outputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close summary file: %w", cerr)
		}
	}()

	writer := bufio.NewWriter(file)
	rule := strings.Repeat("=", 80) + "\n"

	fmt.Fprintf(writer, "NFS-e Tax Audit - Processing Summary\n%s\n", rule)
	fmt.Fprintf(writer, "Run Information:\n"+
		"  Start Time:  %s\n"+
		"  End Time:    %s\n"+
		"  Duration:    %s\n"+
		"  Output:      %s\n\n",
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).String(),
		summary.OutputFile)
	fmt.Fprintf(writer, "Statistics:\n"+
		"  Processed:   %d\n"+
		"  Skipped:     %d\n"+
		"  Divergent:   %d\n\n",
		summary.Processed,
		len(summary.Skipped),
		summary.Divergent)

	if len(summary.Inputs) > 0 {
		fmt.Fprintf(writer, "Inputs:\n%s", strings.Repeat("-", 80)+"\n")
		for _, in := range summary.Inputs {
			fmt.Fprintf(writer, "  %s\n", in)
		}
		writer.WriteString("\n")
	}

	if len(summary.Skipped) > 0 {
		fmt.Fprintf(writer, "Skipped Inputs:\n%s", strings.Repeat("-", 80)+"\n")
		for _, sk := range summary.Skipped {
			fmt.Fprintf(writer, "  File:   %s\n", sk.Name)
			fmt.Fprintf(writer, "  Reason: %s\n\n", skipReason(sk))
		}
	}

	writer.WriteString(rule + "End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}
	return path, nil
}

// skipReason unwraps per-document errors so the file name is not repeated.
func skipReason(sk types.Skip) string {
	if sk.Reason == nil {
		return "unknown"
	}
	var de *types.DocumentError
	if errors.As(sk.Reason, &de) {
		return de.Err.Error()
	}
	return sk.Reason.Error()
}
