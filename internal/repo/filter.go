// File path: internal/repo/filter.go
package repo

import (
	"os"
	"path/filepath"
	"strings"
)

// maxFileSize is the largest file eligible for review (1 MiB). Anything
// bigger is almost certainly generated or vendored.
const maxFileSize = 1024 * 1024

var ignoreDirs = map[string]struct{}{
	"node_modules":  {},
	".git":          {},
	"__pycache__":   {},
	".venv":         {},
	"venv":          {},
	"env":           {},
	".idea":         {},
	".vscode":       {},
	"dist":          {},
	"build":         {},
	"target":        {},
	".next":         {},
	"coverage":      {},
	".pytest_cache": {},
	".mypy_cache":   {},
	"vendor":        {},
	"packages":      {},
}

var codeExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".jsx": {},
	".java": {}, ".go": {}, ".rs": {}, ".cpp": {}, ".c": {}, ".h": {},
	".rb": {}, ".php": {}, ".swift": {}, ".kt": {}, ".scala": {},
	".cs": {}, ".vue": {}, ".svelte": {},
}

var ignoreFiles = map[string]struct{}{
	"package-lock.json": {},
	"yarn.lock":         {},
	"pnpm-lock.yaml":    {},
	"poetry.lock":       {},
	"Pipfile.lock":      {},
	".DS_Store":         {},
	"thumbs.db":         {},
}

// includeFile reports whether a file should be offered for review.
func includeFile(path string, info os.FileInfo) bool {
	name := filepath.Base(path)
	if _, ok := ignoreFiles[name]; ok {
		return false
	}
	if _, ok := codeExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
		return false
	}
	if info != nil && info.Size() > maxFileSize {
		return false
	}
	return true
}

// includeDir reports whether a directory should be traversed.
func includeDir(name string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return false
	}
	_, ignored := ignoreDirs[name]
	return !ignored
}
