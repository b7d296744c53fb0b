// Package gitctx reads repository metadata and change sets from git.
//
// Everything shells out to the git binary with -C so callers never change
// the process working directory. [ChangedFiles] backs the --since flag: it
// lists files modified since a revision, plus uncommitted and untracked
// files, relative to the directory being scanned.
package gitctx
