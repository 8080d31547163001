// File path: internal/repo/store.go

// Package repo acquires and mutates source repositories on behalf of the
// review pipeline: cloning, file-tree listing, reads and writes, and
// publishing accepted changes as pull requests.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/uuid"

	"github.com/coderev-ai/coderev/internal/common"
)

var (
	ErrRepoNotFound = errors.New("repository not found")
	ErrFileNotFound = errors.New("file not found")
)

// FileNode is one entry of a repository file tree.
type FileNode struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Path     string     `json:"path"`
	Children []FileNode `json:"children,omitempty"`
}

// Info describes a registered repository.
type Info struct {
	RepoID     string   `json:"repo_id"`
	Name       string   `json:"name"`
	URL        string   `json:"url"`
	Branch     string   `json:"branch"`
	FilesCount int      `json:"files_count"`
	Languages  []string `json:"languages"`
}

// Store manages local clones keyed by repo id. Registrations are persisted
// in the catalog so they survive restarts.
type Store struct {
	cloneDir string
	catalog  *Catalog
	token    string

	mu    sync.RWMutex
	paths map[string]string
}

// NewStore constructs a store rooted at cloneDir. Previously registered
// repositories whose clones still exist on disk are reloaded from the
// catalog.
func NewStore(cloneDir string, catalog *Catalog) (*Store, error) {
	if strings.TrimSpace(cloneDir) == "" {
		return nil, errors.New("clone dir required")
	}
	if err := os.MkdirAll(cloneDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clone dir: %w", err)
	}
	s := &Store{
		cloneDir: cloneDir,
		catalog:  catalog,
		token:    strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		paths:    make(map[string]string),
	}
	if catalog != nil {
		recs, err := catalog.List(context.Background())
		if err != nil {
			common.Logger().Warn("repo: catalog reload failed", "error", err)
		} else {
			for _, rec := range recs {
				if _, statErr := os.Stat(rec.Path); statErr == nil {
					s.paths[rec.RepoID] = rec.Path
				}
			}
			common.Logger().Info("repo: catalog loaded", "repos", len(s.paths))
		}
	}
	return s, nil
}

// Clone fetches a shallow copy of the repository and registers it under a
// fresh repo id.
func (s *Store) Clone(ctx context.Context, rawURL, branch string) (Info, error) {
	repoID := uuid.NewString()[:8]
	target := filepath.Join(s.cloneDir, repoID)
	branch = strings.TrimSpace(branch)
	if branch == "" {
		branch = "main"
	}
	logger := common.Logger()
	logger.Info("repo: cloning repository", "url", MaskURL(rawURL), "target", target)

	opts := &git.CloneOptions{URL: rawURL, Depth: 1}
	if s.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "token", Password: s.token}
	}
	if _, err := git.PlainCloneContext(ctx, target, false, opts); err != nil {
		_ = os.RemoveAll(target)
		return Info{}, fmt.Errorf("clone failed: %s", maskError(err))
	}

	files, err := s.collectFiles(target)
	if err != nil {
		_ = os.RemoveAll(target)
		return Info{}, err
	}
	languages := detectLanguages(files)
	info := Info{
		RepoID:     repoID,
		Name:       repoNameFromURL(rawURL),
		URL:        MaskURL(rawURL),
		Branch:     branch,
		FilesCount: len(files),
		Languages:  languages,
	}
	s.mu.Lock()
	s.paths[repoID] = target
	s.mu.Unlock()
	if s.catalog != nil {
		rec := Record{
			RepoID:     repoID,
			Name:       info.Name,
			URL:        MaskURL(rawURL),
			Branch:     branch,
			Path:       target,
			FilesCount: len(files),
			Languages:  strings.Join(languages, ","),
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.catalog.Insert(ctx, rec); err != nil {
			logger.Warn("repo: catalog insert failed", "repo", repoID, "error", err)
		}
	}
	logger.Info("repo: repository registered", "repo", repoID, "files", len(files))
	return info, nil
}

func (s *Store) root(repoID string) (string, error) {
	s.mu.RLock()
	path, ok := s.paths[repoID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrRepoNotFound
	}
	return path, nil
}

// FileTree returns the filtered, sorted tree of reviewable files.
func (s *Store) FileTree(repoID string) ([]FileNode, error) {
	root, err := s.root(repoID)
	if err != nil {
		return nil, err
	}
	return buildTree(root, root)
}

// Files returns the flattened relative paths of every reviewable file.
func (s *Store) Files(repoID string) ([]string, error) {
	root, err := s.root(repoID)
	if err != nil {
		return nil, err
	}
	return s.collectFiles(root)
}

// ReadFile returns the content of one file inside the clone. The path is
// confined to the clone root.
func (s *Store) ReadFile(repoID, path string) (string, error) {
	full, err := s.resolve(repoID, path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrFileNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile replaces the content of one file inside the clone.
func (s *Store) WriteFile(repoID, path, content string) error {
	full, err := s.resolve(repoID, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RemoteURL returns the origin URL of the clone with credentials masked.
func (s *Store) RemoteURL(repoID string) (string, error) {
	root, err := s.root(repoID)
	if err != nil {
		return "", err
	}
	repository, err := git.PlainOpen(root)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	remote, err := repository.Remote("origin")
	if err != nil {
		return "", fmt.Errorf("origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", errors.New("origin remote has no URL")
	}
	return MaskURL(urls[0]), nil
}

// Path exposes the local clone root; used by the publisher.
func (s *Store) Path(repoID string) (string, error) {
	return s.root(repoID)
}

// Branch returns the registered base branch for the repository.
func (s *Store) Branch(repoID string) string {
	if s.catalog == nil {
		return "main"
	}
	rec, err := s.catalog.Get(context.Background(), repoID)
	if err != nil || strings.TrimSpace(rec.Branch) == "" {
		return "main"
	}
	return rec.Branch
}

func (s *Store) resolve(repoID, path string) (string, error) {
	root, err := s.root(repoID)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.Clean("/"+path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %s escapes repository", path)
	}
	return full, nil
}

func (s *Store) collectFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && !includeDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if includeFile(path, info) {
			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func buildTree(root, dir string) ([]FileNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var nodes []FileNode
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dir, name)
		rel, err := filepath.Rel(root, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if entry.IsDir() {
			if !includeDir(name) {
				continue
			}
			children, err := buildTree(root, full)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, FileNode{Name: name, Type: "directory", Path: rel, Children: children})
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if includeFile(full, info) {
			nodes = append(nodes, FileNode{Name: name, Type: "file", Path: rel})
		}
	}
	return nodes, nil
}

var languageNames = map[string]string{
	".py": "Python", ".js": "JavaScript", ".jsx": "JavaScript",
	".ts": "TypeScript", ".tsx": "TypeScript", ".java": "Java",
	".go": "Go", ".rs": "Rust", ".cpp": "C++", ".c": "C",
	".rb": "Ruby", ".php": "PHP",
}

func detectLanguages(files []string) []string {
	seen := make(map[string]struct{})
	for _, file := range files {
		if lang, ok := languageNames[strings.ToLower(filepath.Ext(file))]; ok {
			seen[lang] = struct{}{}
		}
	}
	languages := make([]string, 0, len(seen))
	for lang := range seen {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

func repoNameFromURL(rawURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(rawURL, "/"), ".git")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed
}

// MaskURL removes embedded credentials from a remote URL so they never reach
// logs or error text.
func MaskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.User == nil {
		return rawURL
	}
	parsed.User = url.User("***")
	return parsed.String()
}

// maskError scrubs credential-bearing URLs from error text.
func maskError(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	for _, field := range strings.Fields(text) {
		if strings.Contains(field, "@") && strings.Contains(field, "://") {
			text = strings.ReplaceAll(text, field, MaskURL(field))
		}
	}
	return text
}
