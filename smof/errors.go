package smof

import (
	"github.com/pkg/errors"
	"github.com/stix-toolchain/stld/internal/errcode"
)

// newFormatError builds a format-kind error (spec.md §7's "Format" row:
// invalid magic, unsupported version, corrupt header, overlapping
// tables, bad internal fields) tagged with path context. errors.Wrapf
// attaches the file path as a cause-chain prefix the way
// _examples/original_source wraps errno-style failures with the
// offending path, while errcode.Context keeps the structured code
// available to callers via errors.As.
func newFormatError(path string, code errcode.Code, detail string) error {
	return errors.Wrapf(&errcode.Context{
		Code:     code,
		Severity: errcode.Error,
		Message:  detail,
	}, "%s", path)
}
