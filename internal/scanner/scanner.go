package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoredDirs are never descended into.
var IgnoredDirs = []string{
	"node_modules", "venv", ".git", "__pycache__", ".vscode", ".idea", "dist", "build", "env",
}

// sniffLen is how much of a file is checked for NUL bytes.
const sniffLen = 8 << 10

// ErrTooLarge and ErrBinary are reported through Skipped, never yielded.
var (
	ErrTooLarge = errors.New("file exceeds size limit")
	ErrBinary   = errors.New("binary file")
)

// File is one file to analyse.
type File struct {
	Path    string // absolute
	Rel     string // slash-separated, relative to the root; the base name when the root is a file
	Content string
	Size    int64
}

// Options controls which files are yielded.
type Options struct {
	Root         string
	Extensions   []string // lower-case, with leading dot; empty accepts all
	Exclude      []string // doublestar globs against Rel
	MaxFileBytes int64    // 0 disables the limit
	Only         []string // when non-nil, only these Rel paths are considered
	// Skipped, if set, is told about every file dropped for size or content.
	Skipped func(rel string, reason error)
}

// Scanner yields files under a root.
type Scanner struct {
	opts Options
	exts map[string]bool
	only map[string]bool
}

// New validates opts and returns a Scanner. The root must exist.
func New(opts Options) (*Scanner, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("scanner: root is required")
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolving root: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	opts.Root = abs

	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("scanner: invalid exclude pattern %q", p)
		}
	}

	s := &Scanner{opts: opts}
	if len(opts.Extensions) > 0 {
		s.exts = make(map[string]bool, len(opts.Extensions))
		for _, e := range opts.Extensions {
			s.exts[strings.ToLower(e)] = true
		}
	}
	if opts.Only != nil {
		s.only = make(map[string]bool, len(opts.Only))
		for _, p := range opts.Only {
			s.only[filepath.ToSlash(filepath.Clean(p))] = true
		}
	}
	return s, nil
}

// Root returns the absolute root being scanned.
func (s *Scanner) Root() string { return s.opts.Root }

// Files walks the root in lexical order. Read errors on individual files are
// yielded with a zero File so the caller can count them and continue; a
// canceled ctx ends the sequence after yielding ctx.Err().
func (s *Scanner) Files(ctx context.Context) iter.Seq2[File, error] {
	return func(yield func(File, error) bool) {
		info, err := os.Stat(s.opts.Root)
		if err != nil {
			yield(File{}, err)
			return
		}
		if !info.IsDir() {
			s.single(yield)
			return
		}

		err = filepath.WalkDir(s.opts.Root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				if path == s.opts.Root {
					return walkErr
				}
				if !yield(File{Path: path}, walkErr) {
					return fs.SkipAll
				}
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(s.opts.Root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if path != s.opts.Root && (slices.Contains(IgnoredDirs, d.Name()) || s.excluded(rel+"/")) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !s.accept(rel) {
				return nil
			}

			f, err := s.read(path, rel)
			if err != nil {
				if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrBinary) {
					s.skip(rel, err)
					return nil
				}
				if !yield(File{Path: path, Rel: rel}, err) {
					return fs.SkipAll
				}
				return nil
			}
			if !yield(f, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(File{}, err)
		}
	}
}

// single handles a root that is a regular file. Extension and exclude
// filters are not applied; the caller asked for this file explicitly.
func (s *Scanner) single(yield func(File, error) bool) {
	rel := filepath.Base(s.opts.Root)
	f, err := s.read(s.opts.Root, rel)
	if err != nil {
		if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrBinary) {
			s.skip(rel, err)
			return
		}
		yield(File{Path: s.opts.Root, Rel: rel}, err)
		return
	}
	yield(f, nil)
}

func (s *Scanner) accept(rel string) bool {
	if s.only != nil && !s.only[rel] {
		return false
	}
	if s.exts != nil && !s.exts[strings.ToLower(filepath.Ext(rel))] {
		return false
	}
	return !s.excluded(rel)
}

// excluded matches rel against the exclude globs. Directory paths carry a
// trailing slash so "vendor/**" prunes the whole subtree.
func (s *Scanner) excluded(rel string) bool {
	for _, p := range s.opts.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if strings.HasSuffix(rel, "/") {
			if ok, _ := doublestar.Match(p, strings.TrimSuffix(rel, "/")); ok {
				return true
			}
		}
	}
	return false
}

func (s *Scanner) read(path, rel string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	if s.opts.MaxFileBytes > 0 && info.Size() > s.opts.MaxFileBytes {
		return File{}, fmt.Errorf("%s: %w (%d bytes)", rel, ErrTooLarge, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	if IsBinary(data) {
		return File{}, fmt.Errorf("%s: %w", rel, ErrBinary)
	}
	return File{Path: path, Rel: rel, Content: string(data), Size: int64(len(data))}, nil
}

func (s *Scanner) skip(rel string, reason error) {
	if s.opts.Skipped != nil {
		s.opts.Skipped(rel, reason)
	}
}

// IsBinary reports whether data looks binary: a NUL byte in the first 8 KiB.
func IsBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
