package errs

import (
	"errors"
	"fmt"
)

var ErrUnsupportedFileKind = errors.New("unsupported file kind")
var ErrRecordNotFound = errors.New("record not found")
var ErrNotSQL = errors.New("candidate text is not a sql statement")
var ErrProjectRootUnreadable = errors.New("project root is not readable")

var errorInvalidParamFmt = "invalid request params: %s %v"

func NewInvalidParamErr(name string, value interface{}) error {
	return fmt.Errorf(errorInvalidParamFmt, name, value)
}
