// Package ui holds the login and logout presenters. They keep the form state
// a view renders and drive the session service.
package ui

import (
	"sort"
	"strings"

	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/pkg/errors"
)

// ExpandWarnings flattens a warnings map into display lines and the keys that
// produced them. Keys are sorted so the output is stable; every value is split
// on newlines.
func ExpandWarnings(warnings map[string]string) (lines []string, keys []string) {
	keys = make([]string, 0, len(warnings))
	for key := range warnings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines = []string{}
	for _, key := range keys {
		lines = append(lines, strings.Split(warnings[key], "\n")...)
	}
	return lines, keys
}

// mergeKeys appends the keys of add missing from keys.
func mergeKeys(keys []string, add []string) []string {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	for _, k := range add {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// failureText is the message shown when an action could not reach a result.
func failureText(err error, timedOut, empty string) string {
	if autherrors.Is(err, autherrors.ErrTimedOut) {
		return timedOut
	}
	msg := errors.Cause(err).Error()
	if msg == "" {
		return empty
	}
	return msg
}

// feedback is the outcome of the last attempt, shared by both forms.
type feedback struct {
	errors       []string
	warnings     []string
	acceptedKeys []string
}

func (f *feedback) apply(errs []string, warnings map[string]string) {
	f.errors = append([]string(nil), errs...)
	lines, keys := ExpandWarnings(warnings)
	f.warnings = lines
	f.acceptedKeys = mergeKeys(f.acceptedKeys, keys)
}
