package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-xbridge/core"
)

// missingService reports a command built without the service it drives.
func missingService(name string) error {
	return goerrors.New("command: "+name+" service is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BridgeErrorInternal)
}

// invalidField reports a message field that fails validation. When cause is
// set it is wrapped and its text becomes the field message.
func invalidField(field string, message string, cause error) error {
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.NewValidation("command: validation failed", goerrors.FieldError{
			Field:   field,
			Message: message,
		})
	} else {
		err = goerrors.Wrap(cause, goerrors.CategoryValidation, "command: "+message)
		err.ValidationErrors = append(err.ValidationErrors, goerrors.FieldError{
			Field:   field,
			Message: cause.Error(),
		})
	}
	return err.
		WithCode(http.StatusBadRequest).
		WithTextCode(core.BridgeErrorInvalidValue).
		WithSeverity(goerrors.SeverityError)
}
