package jobs_test

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

func hasTextCode(err error, code string) bool {
	var ge *goerrors.Error
	return stderrors.As(err, &ge) && ge.TextCode == code
}
