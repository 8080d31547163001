// File path: internal/chunk/chunker.go
package chunk

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/coderev-ai/coderev/internal/common"
)

// Chunk is a bounded, position-tagged slice of a source file submitted to
// analysis. Chunks are immutable once produced and belong to the review that
// created them.
type Chunk struct {
	Content   string                 `json:"content"`
	FilePath  string                 `json:"file_path"`
	StartLine int                    `json:"start_line"`
	EndLine   int                    `json:"end_line"`
	Language  string                 `json:"language"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ID returns the stable identifier used when indexing a chunk.
func (c Chunk) ID() string {
	index, _ := c.Metadata["chunk_index"].(int)
	return fmt.Sprintf("%s:%d:%d", c.FilePath, c.StartLine, index)
}

// Chunker splits file content into fixed-size character windows with a fixed
// overlap between consecutive windows. Structural (function boundary)
// splitting regressed stability across languages, so windowed splitting is
// the production policy.
type Chunker struct {
	cfg Config
}

// NewChunker constructs a chunker using the provided configuration.
func NewChunker(cfg Config) *Chunker {
	if cfg.Size <= 0 || cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg = DefaultConfig()
	}
	return &Chunker{cfg: cfg}
}

// Chunk segments the provided content. Files shorter than the minimum
// content threshold yield no chunks. The windows cover every character of the
// input at least once; consecutive windows share cfg.Overlap characters, so a
// window may begin mid-line.
func (c *Chunker) Chunk(content, filePath string) []Chunk {
	if len(content) < c.cfg.MinContent {
		return nil
	}
	language := DetectLanguage(filePath)
	var chunks []Chunk
	start := 0
	for start < len(content) {
		if len(chunks) >= c.cfg.MaxChunksPerFile {
			common.Logger().Warn("chunk: per-file chunk cap reached",
				"file", filePath, "cap", c.cfg.MaxChunksPerFile)
			break
		}
		end := start + c.cfg.Size
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, Chunk{
			Content:   content[start:end],
			FilePath:  filePath,
			StartLine: lineAt(content, start),
			EndLine:   lineAt(content, end-1),
			Language:  language,
			Metadata: map[string]interface{}{
				"chunk_index": len(chunks),
				"chunk_type":  "window",
			},
		})
		if end == len(content) {
			break
		}
		start = end - c.cfg.Overlap
	}
	return chunks
}

// lineAt returns the 1-based line number containing the character at offset.
// An offset equal to len(content) maps to the last line.
func lineAt(content string, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return 1 + strings.Count(content[:offset], "\n")
}

var languageByExt = map[string]string{
	".py":     "python",
	".js":     "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".java":   "java",
	".go":     "go",
	".rs":     "rust",
	".cpp":    "cpp",
	".cc":     "cpp",
	".c":      "c",
	".h":      "c",
	".rb":     "ruby",
	".php":    "php",
	".swift":  "swift",
	".kt":     "kotlin",
	".scala":  "scala",
	".cs":     "csharp",
	".vue":    "vue",
	".svelte": "svelte",
}

// DetectLanguage maps a file extension to a language tag. Unknown extensions
// map to "unknown", never an error.
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "unknown"
}
