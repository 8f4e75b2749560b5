package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-xbridge/core"
)

func missingReader(name string) error {
	return goerrors.New("query: "+name+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BridgeErrorInternal)
}

// invalidRemoteID reports a malformed asset id. A parse failure is wrapped so
// callers still see its text.
func invalidRemoteID(message string, cause error) error {
	field := goerrors.FieldError{Field: "remote_id", Message: message}
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.NewValidation("query: validation failed", field)
	} else {
		err = goerrors.Wrap(cause, goerrors.CategoryValidation, "query: "+message)
		err.ValidationErrors = append(err.ValidationErrors, field)
	}
	return err.
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BridgeErrorInvalidValue).
		WithSeverity(goerrors.SeverityError)
}
