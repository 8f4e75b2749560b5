package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-xbridge/core"
)

// dispatchError builds the envelope for a dispatcher failure. The HTTP code
// follows the text code.
func dispatchError(
	source error,
	message string,
	category goerrors.Category,
	textCode string,
	metadata map[string]any,
) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(dispatchStatus(textCode)).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func dispatchStatus(textCode string) int {
	switch textCode {
	case core.BridgeErrorUnauthorized:
		return http.StatusForbidden
	case core.BridgeErrorInvalidValue:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func verificationFailed(source error, metadata map[string]any) error {
	return dispatchError(source, "inbound: call message verification failed",
		goerrors.CategoryAuthz, core.BridgeErrorUnauthorized, metadata)
}

func claimStoreFailed(source error, message string, metadata map[string]any) error {
	return dispatchError(source, message, goerrors.CategoryOperation, core.BridgeErrorInternal, metadata)
}

func inboundBadInput(message string, metadata map[string]any) error {
	return dispatchError(nil, message, goerrors.CategoryBadInput, core.BridgeErrorInvalidValue, metadata)
}

func inboundInternal(message string, metadata map[string]any) error {
	return dispatchError(nil, message, goerrors.CategoryInternal, core.BridgeErrorInternal, metadata)
}
