// Package scope turns a user selection into the concrete, sorted set of
// scope ids (or a bare relative path) a run operates on.
package scope

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ConfigError reports a contradictory or incomplete selection. It is raised
// before any catalog or disk access.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "invalid selection: " + e.Msg }

// ResolutionError reports a selection that matched nothing, or matched
// ambiguously.
type ResolutionError struct {
	Selector string
	Msg      string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s", e.Selector, e.Msg)
}

// Selector is exactly one way of picking scopes.
type Selector struct {
	IDs      []int64
	Tag      string
	RelPath  string
	ReqNum   int64
	UnitName string
	AttNum   int64

	// DateRange is "YYYY-MM-DD" or "YYYY-MM-DD,YYYY-MM-DD", inclusive.
	DateRange string
	Pipeline  string
}

// Kind names the selector in use, for messages.
func (s Selector) Kind() string {
	switch {
	case len(s.IDs) > 0:
		return "ids"
	case s.Tag != "":
		return "tag " + s.Tag
	case s.RelPath != "":
		return "relpath " + s.RelPath
	case s.ReqNum != 0:
		return fmt.Sprintf("reqnum %d", s.ReqNum)
	case s.DateRange != "":
		return "date range " + s.DateRange
	default:
		return "none"
	}
}

// Validate checks that exactly one selector kind is set and that it is well
// formed.
func (s Selector) Validate() error {
	set := 0
	for _, on := range []bool{
		len(s.IDs) > 0,
		s.Tag != "",
		s.RelPath != "",
		s.ReqNum != 0,
		s.DateRange != "",
	} {
		if on {
			set++
		}
	}

	if (s.UnitName != "" || s.AttNum != 0) && s.ReqNum == 0 {
		return &ConfigError{Msg: "unitname and attnum require reqnum"}
	}
	if s.Tag != "" && len(s.IDs) > 0 {
		return &ConfigError{Msg: "tag cannot be combined with ids"}
	}
	if set == 0 {
		return &ConfigError{Msg: "one of ids, tag, relpath, reqnum or date range is required"}
	}
	if set > 1 {
		return &ConfigError{Msg: "ids, tag, relpath, reqnum and date range are mutually exclusive"}
	}
	if s.RelPath != "" && filepath.IsAbs(s.RelPath) {
		return &ConfigError{Msg: fmt.Sprintf("relpath %q must be relative to the archive root", s.RelPath)}
	}
	if s.Pipeline != "" && s.DateRange == "" {
		return &ConfigError{Msg: "pipeline requires a date range"}
	}
	if s.DateRange != "" {
		if _, _, err := ParseDateRange(s.DateRange); err != nil {
			return &ConfigError{Msg: err.Error()}
		}
	}
	return nil
}

// ParseIDs parses a comma-separated id list, dropping duplicates.
func ParseIDs(list string) ([]int64, error) {
	var ids []int64
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil || id <= 0 {
			return nil, &ConfigError{Msg: fmt.Sprintf("invalid id %q", field)}
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// ParseDateRange splits "YYYY-MM-DD[,YYYY-MM-DD]" into inclusive bounds.
func ParseDateRange(r string) (from, to string, err error) {
	from, to, found := strings.Cut(r, ",")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if !found {
		to = from
	}

	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return "", "", fmt.Errorf("bad date %q, want YYYY-MM-DD", from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return "", "", fmt.Errorf("bad date %q, want YYYY-MM-DD", to)
	}
	if end.Before(start) {
		return "", "", fmt.Errorf("date range %s ends before it starts", r)
	}
	return from, to, nil
}

// Lookup is the catalog surface the resolver reads.
type Lookup interface {
	ScopesByTag(ctx context.Context, tag string) ([]int64, error)
	ScopesByTriplet(ctx context.Context, reqnum int64, unitname string, attnum int64) ([]int64, error)
	ScopesByPath(ctx context.Context, relPath string) ([]int64, error)
	ScopesByDateRange(ctx context.Context, from, to, pipeline string) ([]int64, error)
}

// Resolution is the outcome of resolving a Selector.
type Resolution struct {
	// IDs is sorted ascending. Empty only in partial mode.
	IDs []int64

	// RelPath is set for relpath selections.
	RelPath string

	// Partial is true when RelPath is below (not exactly) a scope's root, so
	// no scope id owns it.
	Partial bool
}

// Resolve validates sel and resolves it against the catalog.
func Resolve(ctx context.Context, cat Lookup, sel Selector) (Resolution, error) {
	if err := sel.Validate(); err != nil {
		return Resolution{}, err
	}

	var (
		ids []int64
		err error
	)
	switch {
	case len(sel.IDs) > 0:
		ids = slices.Clone(sel.IDs)

	case sel.Tag != "":
		ids, err = cat.ScopesByTag(ctx, sel.Tag)

	case sel.RelPath != "":
		relPath := strings.TrimRight(filepath.Clean(sel.RelPath), "/")
		ids, err = cat.ScopesByPath(ctx, relPath)
		if err != nil {
			return Resolution{}, err
		}
		switch len(ids) {
		case 0:
			return Resolution{RelPath: relPath, Partial: true}, nil
		case 1:
			return Resolution{IDs: ids, RelPath: relPath}, nil
		default:
			return Resolution{}, &ResolutionError{
				Selector: sel.Kind(),
				Msg:      fmt.Sprintf("path is the root of %d scopes %v", len(ids), ids),
			}
		}

	case sel.ReqNum != 0:
		ids, err = cat.ScopesByTriplet(ctx, sel.ReqNum, sel.UnitName, sel.AttNum)

	case sel.DateRange != "":
		from, to, _ := ParseDateRange(sel.DateRange)
		ids, err = cat.ScopesByDateRange(ctx, from, to, sel.Pipeline)
	}
	if err != nil {
		return Resolution{}, err
	}
	if len(ids) == 0 {
		return Resolution{}, &ResolutionError{Selector: sel.Kind(), Msg: "no matching scopes"}
	}

	slices.Sort(ids)
	return Resolution{IDs: slices.Compact(ids)}, nil
}

// PathLookup lists the distinct file directories of a set of scopes.
type PathLookup interface {
	ScopePaths(ctx context.Context, archive string, ids []int64) ([]string, error)
}

// ResolvePaths returns the sorted distinct relative paths holding the files
// of ids.
func ResolvePaths(ctx context.Context, cat PathLookup, archive string, ids []int64) ([]string, error) {
	paths, err := cat.ScopePaths(ctx, archive, ids)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &ResolutionError{Selector: "paths", Msg: fmt.Sprintf("no files in archive %s", archive)}
	}
	slices.Sort(paths)
	return paths, nil
}

// Slice returns the 1-based inclusive window [startAt, endAt] of items. Zero
// leaves that bound open.
func Slice[T any](items []T, startAt, endAt int) ([]T, error) {
	if startAt == 0 {
		startAt = 1
	}
	if endAt == 0 {
		endAt = len(items)
	}
	if startAt < 1 || startAt > len(items) {
		return nil, &ConfigError{Msg: fmt.Sprintf("start-at %d outside 1..%d", startAt, len(items))}
	}
	if endAt < startAt || endAt > len(items) {
		return nil, &ConfigError{Msg: fmt.Sprintf("end-at %d outside %d..%d", endAt, startAt, len(items))}
	}
	return items[startAt-1 : endAt], nil
}
