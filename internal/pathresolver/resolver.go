// Package pathresolver expands environment references in a declared
// source path and validates the result against a base directory and,
// for output paths, a list of blocked system roots.
package pathresolver

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/forensant/triage-collector/pkg/errors"
)

var unixVarPattern = regexp.MustCompile(`\$([A-Za-z0-9_]+)`)

// Expand replaces `%NAME%`, `${NAME}`, and `$NAME` environment
// references in raw, in that order:
//   - %NAME% is replaced by the variable's value if set, left intact
//     otherwise; scanning restarts from the beginning after every
//     replacement to resolve nested substitutions.
//   - ${NAME} is replaced by the value, or the empty string if unset.
//   - $NAME (NAME matching [A-Za-z0-9_]+, greedy) is replaced if set,
//     skipped otherwise.
func Expand(raw string) string {
	result := expandPercent(raw)
	result = expandBraced(result)
	result = expandBare(result)
	return result
}

func expandPercent(s string) string {
	for {
		start := strings.IndexByte(s, '%')
		if start < 0 {
			return s
		}
		end := strings.IndexByte(s[start+1:], '%')
		if end < 0 {
			return s
		}
		name := s[start+1 : start+1+end]
		value, ok := os.LookupEnv(name)
		if !ok {
			// Leave this reference intact and look for the next one
			// past it, without restarting from the beginning.
			rest := expandPercentFrom(s[start+1+end+1:])
			return s[:start+1+end+1] + rest
		}
		s = s[:start] + value + s[start+1+end+1:]
		// Restart from the beginning to resolve nested substitutions.
	}
}

// expandPercentFrom continues %VAR% expansion over the remainder of a
// string after an unresolved reference was skipped, without restarting
// the whole scan from position zero.
func expandPercentFrom(s string) string {
	for {
		start := strings.IndexByte(s, '%')
		if start < 0 {
			return s
		}
		end := strings.IndexByte(s[start+1:], '%')
		if end < 0 {
			return s
		}
		name := s[start+1 : start+1+end]
		value, ok := os.LookupEnv(name)
		if !ok {
			prefix := s[:start+1+end+1]
			return prefix + expandPercentFrom(s[start+1+end+1:])
		}
		s = s[:start] + value + s[start+1+end+1:]
	}
}

func expandBraced(s string) string {
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			return s
		}
		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			return s
		}
		name := s[start+2 : start+2+end]
		value := os.Getenv(name)
		s = s[:start] + value + s[start+2+end+1:]
	}
}

func expandBare(s string) string {
	return unixVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1:]
		value, ok := os.LookupEnv(name)
		if !ok {
			return match
		}
		return value
	})
}

// normalizeSeparators converts path separators to the host style.
func normalizeSeparators(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ReplaceAll(path, "/", "\\")
	}
	return strings.ReplaceAll(path, "\\", "/")
}

// blockedOutputRoots are well-known system roots; an output path
// resolving under any of these (case-insensitive) is rejected.
var blockedOutputRoots = []string{
	"/etc", "/sys", "/proc", "/dev", "/boot", "/usr",
	"/system", "/library",
	`c:\windows`, `c:\program files`, `c:\programdata`,
}

// Resolve expands raw, then validates it against base: rejects any
// ".." component, rejects absolute paths, rejects embedded NUL, and
// requires that the canonical result be a descendant of the canonical
// base. Non-existent intermediates are resolved lexically, without
// touching the filesystem, while still enforcing the prefix check.
func Resolve(raw string, base string) (string, error) {
	expanded := normalizeSeparators(Expand(raw))

	if strings.ContainsRune(expanded, 0) {
		return "", errors.NewError(errors.ErrCodeInvalidPath, "path contains embedded NUL").
			WithComponent("pathresolver").WithOperation("Resolve").WithContext("source_path", raw)
	}

	for _, component := range strings.FieldsFunc(expanded, isSeparator) {
		if component == ".." {
			return "", errors.NewError(errors.ErrCodePathEscape, "path contains a '..' component").
				WithComponent("pathresolver").WithOperation("Resolve").WithContext("source_path", raw)
		}
	}

	if filepath.IsAbs(expanded) || isWindowsAbs(expanded) {
		return "", errors.NewError(errors.ErrCodeInvalidPath, "absolute paths are not allowed relative to a base").
			WithComponent("pathresolver").WithOperation("Resolve").WithContext("source_path", raw)
	}

	canonicalBase := lexicalClean(base)
	resolved := filepath.Join(canonicalBase, expanded)

	if !isDescendant(canonicalBase, resolved) {
		return "", errors.NewError(errors.ErrCodePathEscape, "resolved path escapes base directory").
			WithComponent("pathresolver").WithOperation("Resolve").
			WithContext("base", base).WithContext("resolved", resolved)
	}

	return resolved, nil
}

// ResolveOutputPath resolves raw against base exactly as Resolve does,
// then additionally rejects results that fall under a well-known
// system root.
func ResolveOutputPath(raw string, base string) (string, error) {
	resolved, err := Resolve(raw, base)
	if err != nil {
		return "", err
	}

	lower := strings.ToLower(resolved)
	for _, blocked := range blockedOutputRoots {
		if strings.HasPrefix(lower, blocked) {
			return "", errors.NewError(errors.ErrCodeBlockedOutputDir, "output path falls under a blocked system root").
				WithComponent("pathresolver").WithOperation("ResolveOutputPath").
				WithContext("resolved", resolved).WithContext("blocked_root", blocked)
		}
	}

	return resolved, nil
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func isWindowsAbs(path string) bool {
	if len(path) >= 2 && path[1] == ':' {
		c := path[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	}
	return strings.HasPrefix(path, `\\`)
}

// lexicalClean cleans a path without touching the filesystem, so
// non-existent base directories still resolve deterministically.
func lexicalClean(path string) string {
	return filepath.Clean(path)
}

// isDescendant reports whether resolved is base itself or lies under
// it, comparing lexically (no symlink resolution, since intermediates
// may not exist yet).
func isDescendant(base, resolved string) bool {
	if resolved == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(resolved, base+sep)
}
