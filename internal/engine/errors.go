package engine

import (
	"errors"
	"fmt"

	"github.com/pankaj-dahiya-devops/securescope/internal/store"
)

// ErrScanNotFound is returned by every view for an unknown scan id.
var ErrScanNotFound = store.ErrNotFound

// ErrCredentialExpired is returned by ExecuteScan when the vault no longer
// holds the scan's credential. The scan is marked FAILED before returning.
var ErrCredentialExpired = errors.New("credentials expired or missing")

// CredentialValidationError wraps the identity-check failure of StartScan.
// No scan is created when it is returned.
type CredentialValidationError struct {
	Err error
}

func (e *CredentialValidationError) Error() string {
	return fmt.Sprintf("credential validation failed: %v", e.Err)
}

func (e *CredentialValidationError) Unwrap() error { return e.Err }

// UnsupportedExportFormatError is returned by ExportScan for any format
// other than "json" and "md".
type UnsupportedExportFormatError struct {
	Format string
}

func (e *UnsupportedExportFormatError) Error() string {
	return fmt.Sprintf("unsupported export format %q", e.Format)
}
