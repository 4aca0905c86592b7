// Package scan walks repositories and drives analysis sessions: traversal,
// cache consultation, budget-gated dispatch, and the session state machine.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest file the walker will offer for analysis.
// Anything bigger is almost certainly generated or data, and would burn
// budget for nothing.
const MaxFileSize = 100 * 1024

// skipDirs marks directory components whose contents are generated,
// vendored, or otherwise not worth analyzing.
var skipDirs = []string{
	"/dist/",
	"/build/",
	"/node_modules/",
	"/target/",
	"/.git/",
	"/vendor/",
	"/__pycache__/",
	"/.next/",
	"/out/",
	"/coverage/",
	"/.cache/",
}

// skipSuffixes marks generated artifacts by filename.
var skipSuffixes = []string{
	".min.js",
	".min.css",
	".min.mjs",
	".map",
	".bundle.js",
	".chunk.js",
	".d.ts",
	".lock",
}

// codeExtensions are the source file types offered for analysis.
var codeExtensions = []string{
	".go", ".rs", ".py", ".js", ".ts", ".tsx", ".sh", ".kt", ".java", ".rb",
}

// File is one analyzable file discovered during traversal.
type File struct {
	// Path is repo-relative with forward slashes, the form used as the
	// cache key.
	Path string
	// AbsPath is the on-disk location for reading content.
	AbsPath string
	Size    int64
}

// Walk enumerates analyzable files under root in deterministic
// lexicographic order. The error return is a traversal failure (the whole
// tree could not be enumerated); per-file stat problems just drop the file.
func Walk(root string) ([]File, error) {
	var files []File

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				// The root itself could not be read.
				return err
			}
			if d.IsDir() {
				// Unreadable subtree: skip it rather than failing the scan.
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && shouldSkipPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !shouldAnalyzeFile(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > MaxFileSize || info.Size() == 0 {
			return nil
		}

		files = append(files, File{Path: rel, AbsPath: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository tree: %w", err)
	}

	return files, nil
}

// shouldSkipPath reports whether a repo-relative path falls in a
// generated/vendored location or names a generated artifact.
func shouldSkipPath(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	withLeading := normalized
	if !strings.HasPrefix(withLeading, "/") {
		withLeading = "/" + withLeading
	}

	for _, dir := range skipDirs {
		if strings.Contains(withLeading, dir) {
			return true
		}
	}
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			return true
		}
	}
	return false
}

// isAnalyzableFile reports whether the file has a source-code extension.
func isAnalyzableFile(path string) bool {
	for _, ext := range codeExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// shouldAnalyzeFile is the combined filter: code file, not in a skip path.
func shouldAnalyzeFile(path string) bool {
	return isAnalyzableFile(path) && !shouldSkipPath(path)
}

// looksMinified detects single-blob generated files that slipped past the
// suffix filter: very long average lines across very few lines.
func looksMinified(content []byte) bool {
	lines := strings.Split(string(content), "\n")
	if len(lines) >= 50 {
		return false
	}
	total := 0
	for _, line := range lines {
		total += len(line)
	}
	return total/len(lines) > 500
}

// readFile loads a file's content, enforcing the size cap a second time in
// case the file grew between walk and read.
func readFile(absPath string) ([]byte, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(content) > MaxFileSize {
		return nil, fmt.Errorf("file exceeds size limit (%d bytes)", len(content))
	}
	return content, nil
}
