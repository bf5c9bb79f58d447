// Package archive persists documents saved back by the editor. Each key maps to
// one file that is overwritten on every save; every save is also committed to a
// git repository rooted at the archive directory so earlier versions stay
// recoverable.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	// ErrInvalidKey rejects keys that are empty or could escape the archive.
	ErrInvalidKey = errors.New("invalid document key")
	// ErrVersionNotFound means the revision is unknown or does not contain the key.
	ErrVersionNotFound = errors.New("archived version not found")
)

// Commit describes one archived save.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	author  string
	now     func() time.Time

	mu   sync.Mutex
	repo *git.Repository
}

func New(baseDir string) *Service {
	return &Service{baseDir: baseDir, author: "docbridge", now: time.Now}
}

// Path returns the file a key is saved to.
func (s *Service) Path(key string) (string, error) {
	name, err := fileName(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, name), nil
}

// Save writes data as the current version for key and commits it.
func (s *Service) Save(key string, data []byte) (Commit, error) {
	name, err := fileName(key)
	if err != nil {
		return Commit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(s.baseDir, name), data, 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := worktree.Add(name); err != nil {
		return Commit{}, fmt.Errorf("git add %s: %w", name, err)
	}

	hash, err := worktree.Commit("Save "+key, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.author,
			Email: s.author + "@localhost",
			When:  s.now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		// identical bytes; the previous commit already holds this version
		head, headErr := repo.Head()
		if headErr != nil {
			return Commit{}, fmt.Errorf("read head: %w", headErr)
		}
		hash = head.Hash()
	} else if err != nil {
		return Commit{}, fmt.Errorf("commit %s: %w", name, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj), nil
}

// History lists the saves of key, newest first.
func (s *Service) History(key string, limit int) ([]Commit, error) {
	name, err := fileName(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &name})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var items []Commit
	for limit <= 0 || len(items) < limit {
		commitObj, err := iter.Next()
		if err != nil {
			break
		}
		items = append(items, toCommit(commitObj))
	}
	return items, nil
}

// Version returns the bytes of key as of an earlier commit.
func (s *Service) Version(key, hash string) ([]byte, error) {
	name, err := fileName(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return nil, err
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrVersionNotFound, hash, err)
	}
	commitObj, err := repo.CommitObject(*resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit object: %w", err)
	}
	file, err := commitObj.File(name)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("%w: %s at %s", ErrVersionNotFound, name, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", name, hash, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s contents: %w", name, err)
	}
	return []byte(contents), nil
}

// open returns the archive repository, creating it on first use. Callers hold mu.
func (s *Service) open() (*git.Repository, error) {
	if s.repo != nil {
		return s.repo, nil
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	repo, err := git.PlainOpen(s.baseDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(s.baseDir, false)
		if err != nil {
			return nil, fmt.Errorf("init archive repo: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
			return nil, fmt.Errorf("set HEAD to main: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open archive repo: %w", err)
	}
	s.repo = repo
	return repo, nil
}

// CheckKey reports whether key can be archived.
func CheckKey(key string) error {
	_, err := fileName(key)
	return err
}

func fileName(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key + ".docx", nil
}

func toCommit(commitObj *object.Commit) Commit {
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}
