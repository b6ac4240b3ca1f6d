package errors

import (
	stderrors "errors"

	"github.com/vango-dev/derive/pkg/derive"
)

// FromRuntime converts an engine failure into a DeriveError with the
// matching runtime code. Entry failures carry the entry name as subject.
func FromRuntime(err error) *DeriveError {
	if err == nil {
		return nil
	}
	var de *DeriveError
	if stderrors.As(err, &de) {
		return de
	}

	code := CodeWatchFailed
	switch {
	case stderrors.Is(err, derive.ErrCycle):
		code = CodeCycle
	case stderrors.Is(err, derive.ErrRecomputeLimit):
		code = CodeRecomputeLimit
	case stderrors.Is(err, derive.ErrComputeFailed):
		code = CodeComputeFailed
	case stderrors.Is(err, derive.ErrBatchLimit):
		code = CodeBatchLimit
	case stderrors.Is(err, derive.ErrDetached):
		code = CodeDetached
	}

	out := New(code).Wrap(err)
	var ee *derive.EntryError
	if stderrors.As(err, &ee) {
		out.Subject = ee.Name
	}
	return out
}
