package collect

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/pkg/errors"
)

// Walker performs the regex-based recursive directory collection
// described by an artifact's RegexConfig: every file under basePath
// whose path (relative to basePath) matches includePattern and does
// not match excludePattern is copied into outputBase at the same
// relative location.
//
// Patterns are Go's regexp (RE2): backreferences and lookaround are
// not supported, a narrowing of "Perl-compatible" that callers should
// expect when porting patterns from PCRE-based tooling.
type Walker struct {
	include  *regexp.Regexp
	exclude  *regexp.Regexp
	recursive bool
	maxDepth  *int
}

// NewWalker compiles include/exclude and fails fast (ErrCodeRegexInvalid)
// if either pattern does not compile, before any filesystem I/O happens.
func NewWalker(includePattern, excludePattern string, recursive bool, maxDepth *int) (*Walker, error) {
	include, err := regexp.Compile(includePattern)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeRegexInvalid, "invalid include pattern").
			WithComponent("collect").WithOperation("NewWalker").
			WithContext("pattern", includePattern).WithCause(err)
	}

	var exclude *regexp.Regexp
	if excludePattern != "" {
		exclude, err = regexp.Compile(excludePattern)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeRegexInvalid, "invalid exclude pattern").
				WithComponent("collect").WithOperation("NewWalker").
				WithContext("pattern", excludePattern).WithCause(err)
		}
	}

	return &Walker{include: include, exclude: exclude, recursive: recursive, maxDepth: maxDepth}, nil
}

// Entry is one file matched and copied by Walk.
type Entry struct {
	RelativePath string
	Metadata     Metadata
}

// Walk performs a pre-order depth-first traversal of basePath, copying
// every matching file into outputBase. Files that fail to collect are
// skipped with their error recorded rather than aborting the whole
// walk, matching the scheduler's "required-vs-optional" failure model
// one level up.
func (w *Walker) Walk(basePath, outputBase string) ([]Entry, []error) {
	var entries []Entry
	var walkErrors []error
	w.walkDir(basePath, basePath, outputBase, 0, &entries, &walkErrors)
	return entries, walkErrors
}

func (w *Walker) walkDir(dir, basePath, outputBase string, depth int, entries *[]Entry, walkErrors *[]error) {
	if w.maxDepth != nil && depth > *w.maxDepth {
		return
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		*walkErrors = append(*walkErrors, errors.NewError(errors.ErrCodeRegexWalkFailed, "failed to read directory").
			WithComponent("collect").WithOperation("Walk").WithContext("path", dir).WithCause(err))
		return
	}

	for _, de := range dirEntries {
		path := filepath.Join(dir, de.Name())
		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			continue
		}

		if w.exclude != nil && w.exclude.MatchString(rel) {
			continue
		}

		if de.IsDir() {
			if w.recursive {
				w.walkDir(path, basePath, outputBase, depth+1, entries, walkErrors)
			}
			continue
		}

		if !w.include.MatchString(rel) {
			continue
		}

		dest := filepath.Join(outputBase, rel)
		backend := genericBackend{}
		meta, err := backend.collectFile(path, dest)
		if err != nil {
			*walkErrors = append(*walkErrors, err)
			continue
		}

		*entries = append(*entries, Entry{RelativePath: rel, Metadata: meta})
	}
}

// NewWalkerFromConfig builds a Walker from an artifact's RegexConfig,
// applying config.DefaultIncludePattern when IncludePattern is empty.
func NewWalkerFromConfig(r *config.RegexConfig) (*Walker, error) {
	include := r.IncludePattern
	if include == "" {
		include = config.DefaultIncludePattern
	}
	return NewWalker(include, r.ExcludePattern, r.Recursive, r.MaxDepth)
}
