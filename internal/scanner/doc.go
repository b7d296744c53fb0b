// Package scanner walks a project and yields the files worth analysing.
//
// [Scanner.Files] returns a lazy iter.Seq2 that re-walks the tree on every
// range, so a run can be restarted. Well-known dependency, build and editor
// directories are never entered; doublestar exclude globs, a size cap and a
// binary sniff drop the rest.
package scanner
