package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-xbridge/core"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportInternal(message string, metadata map[string]any) error {
	return transportError(message, goerrors.CategoryInternal, http.StatusInternalServerError, metadata)
}

func transportBadInput(message string, metadata map[string]any) error {
	return transportError(message, goerrors.CategoryValidation, http.StatusBadRequest, metadata)
}

func transportNotFound(message string, metadata map[string]any) error {
	return transportError(message, goerrors.CategoryNotFound, http.StatusNotFound, metadata)
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.BridgeErrorInvalidValue
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.BridgeErrorUnauthorized
	case goerrors.CategoryNotFound:
		return core.BridgeErrorNotFound
	case goerrors.CategoryConflict:
		return core.BridgeErrorConfiguration
	case goerrors.CategoryExternal:
		return core.BridgeErrorExternalFailure
	default:
		return core.BridgeErrorInternal
	}
}
