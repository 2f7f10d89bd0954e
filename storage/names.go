package storage

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxTableNameLength bounds product table names, in runes.
const MaxTableNameLength = 128

// Identifiers cannot be bound as parameters, so product names that end up
// in DDL/DML are restricted to this set and then double-quoted.
var (
	safeTableName   = regexp.MustCompile(`^[\p{L}\p{N} _\-./+(),:#&]+$`)
	unsafeTableRune = regexp.MustCompile(`[^\p{L}\p{N} _\-./+(),:#&]+`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// ValidateTableName returns ErrInvalidTableName unless name is non-blank,
// at most MaxTableNameLength runes, made only of letters, digits, spaces and
// `_ - . / + ( ) , : # &`, and not in SQLite's reserved sqlite_ namespace.
func ValidateTableName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidTableName)
	case utf8.RuneCountInString(name) > MaxTableNameLength:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidTableName, MaxTableNameLength)
	case !safeTableName.MatchString(name):
		return fmt.Errorf("%w: %q contains characters outside the allowed set", ErrInvalidTableName, name)
	case strings.HasPrefix(strings.ToLower(name), "sqlite_"):
		return fmt.Errorf("%w: %q uses the reserved sqlite_ prefix", ErrInvalidTableName, name)
	}
	return nil
}

// SanitizeTableName maps an arbitrary product name onto a name that passes
// ValidateTableName. Whitespace runs collapse to one space, disallowed runs
// become "_" and the result is truncated. It returns "" when nothing usable is left.
func SanitizeTableName(name string) string {
	s := whitespace.ReplaceAllString(name, " ")
	s = unsafeTableRune.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "sqlite_") {
		s = "p_" + s
	}
	if utf8.RuneCountInString(s) > MaxTableNameLength {
		s = strings.TrimSpace(string([]rune(s)[:MaxTableNameLength]))
	}
	if strings.Trim(s, "_ ") == "" {
		return ""
	}
	return s
}

// quoteIdent renders name as an SQLite quoted identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
