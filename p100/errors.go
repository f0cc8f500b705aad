package p100

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMatch indicates no list entry matched a name.
	ErrNoMatch = errors.New("no match")

	// ErrAmbiguousName indicates a partial name matched several entries.
	ErrAmbiguousName = errors.New("ambiguous name")

	// ErrEmptyList indicates the device reported an empty list.
	ErrEmptyList = errors.New("empty list")
)

// matchByName finds the entry whose name equals name ignoring case, or
// failing that the single entry whose name contains it.
func matchByName[T any](kind string, items []T, name string, nameOf func(T) string) (T, error) {
	var zero T
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return zero, fmt.Errorf("%s %q: %w", kind, name, ErrNoMatch)
	}

	for _, item := range items {
		if strings.ToLower(nameOf(item)) == want {
			return item, nil
		}
	}

	var matches []T
	for _, item := range items {
		if strings.Contains(strings.ToLower(nameOf(item)), want) {
			matches = append(matches, item)
		}
	}
	switch len(matches) {
	case 0:
		return zero, fmt.Errorf("%s %q: %w", kind, name, ErrNoMatch)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = nameOf(m)
		}
		return zero, fmt.Errorf("%s %q matches %s: %w", kind, name, strings.Join(names, ", "), ErrAmbiguousName)
	}
}
