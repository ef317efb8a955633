package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/bamsammich/arcmgr/internal/compare"
)

// ErrInterrupted is returned when a run is cancelled at a phase boundary and
// the scope was rolled back.
var ErrInterrupted = errors.New("interrupted")

// PermissionError lists files lacking read+write access. Nothing was touched.
type PermissionError struct {
	Scope    string
	Paths    []string
	SideFile string
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("scope %s: %d files lack read/write permission", e.Scope, len(e.Paths))
	if e.SideFile != "" {
		msg += " (listed in " + e.SideFile + ")"
	}
	return msg
}

// VerifyError reports a move whose re-comparison was not clean.
type VerifyError struct {
	Scope  string
	Result *compare.Result
}

func (e *VerifyError) Error() string {
	r := e.Result
	var parts []string
	for _, c := range []struct {
		name string
		n    int
	}{
		{"catalog-only", len(r.CatalogOnly)},
		{"disk-only", len(r.DiskOnly)},
		{"path", len(r.PathMismatch)},
		{"size", len(r.SizeMismatch)},
		{"checksum", len(r.ChecksumMismatch)},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.name))
		}
	}
	return fmt.Sprintf("scope %s: verification failed: %s", e.Scope, strings.Join(parts, ", "))
}

// RollbackError wraps the failure that triggered a rollback together with
// the rollback steps that themselves failed. The catalog or disk may need
// manual repair.
type RollbackError struct {
	Cause    error
	Failures *multierror.Error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v; rollback incomplete: %v", e.Cause, e.Failures.ErrorOrNil())
}

func (e *RollbackError) Unwrap() error { return e.Cause }
