// =============================================================================
// talktime - File Manager Utility
// =============================================================================
//
// This module provides the file helpers the pipeline needs around its stages:
//   - Existence checks for cache and skip decisions
//   - Input fingerprints for the fingerprint cache policy
//   - Ledger file naming
//   - Archival of finished ledgers
//
// ARCHIVAL STRATEGY:
//   - Ledgers are copied, never moved, so the output directory stays complete
//   - With UseTimestampSubdirs the copy lands in archive/YYYY/MM/DD/
//
// =============================================================================

package utils

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles archival of pipeline outputs.
type FileManager struct {
	// OutputArchiveDir is the directory for archived output files.
	OutputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in archives.
	// Example: archive/2024/05/23/talktime_tanggal_23 11_00_00.csv
	UseTimestampSubdirs bool

	// Now is used for the dated subdirectory. Defaults to time.Now.
	Now func() time.Time
}

// NewFileManager creates a FileManager archiving into archiveDir with dated
// subdirectories.
func NewFileManager(archiveDir string) *FileManager {
	return &FileManager{
		OutputArchiveDir:    archiveDir,
		UseTimestampSubdirs: true,
		Now:                 time.Now,
	}
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveOutputFile copies an output file to the archive directory.
//
// PARAMETERS:
//   - filePath: The path to the file to archive.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
//
// NOTE: Output files are copied, not moved, so they remain in the output directory.
func (fm *FileManager) ArchiveOutputFile(filePath string) (string, error) {
	archivePath := fm.getArchivePath(fm.OutputArchiveDir, filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := copyFile(filePath, archivePath); err != nil {
		return "", fmt.Errorf("failed to copy file to archive: %w", err)
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := time.Now()
		if fm.Now != nil {
			now = fm.Now()
		}
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(archiveDir, fileName)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// LedgerFileName returns the ledger file name for a window starting at start.
//
// EXAMPLE:
//   prefix: "talktime", start: 2024-05-23 11:00:00
//   output: "talktime_tanggal_23 11_00_00.csv"
func LedgerFileName(prefix string, start time.Time) string {
	return fmt.Sprintf("%s_tanggal_%s.csv", prefix, start.Format("02 15_04_05"))
}

// =============================================================================
// FINGERPRINTS
// =============================================================================

// Fingerprint returns the hex BLAKE3 digest over the given files, in order.
// Each file contributes its base name, its length and its content, so
// renaming or reordering inputs changes the digest.
//
// RETURNS:
//   - The hex digest.
//   - An error wrapping os.ErrNotExist if any file is missing.
func Fingerprint(paths ...string) (string, error) {
	h := blake3.New()

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}

		info, err := f.Stat()
		if err != nil {
			f.Close()
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", filepath.Base(path), info.Size())

		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	if err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a regular file or directory exists at path. A path
// that cannot be stat'ed for any reason counts as absent.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// MissingFiles returns the paths that do not exist, preserving order.
func MissingFiles(paths ...string) []string {
	var missing []string
	for _, p := range paths {
		if !FileExists(p) {
			missing = append(missing, p)
		}
	}
	return missing
}
