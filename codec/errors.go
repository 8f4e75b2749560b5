package codec

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const ErrorMalformedMessage = "BRIDGE_MALFORMED_MESSAGE"

func malformed(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorMalformedMessage)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func malformedWrap(source error, message string, metadata map[string]any) error {
	if source == nil {
		return malformed(message, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryBadInput, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorMalformedMessage)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// IsMalformed reports whether err was produced by a failed encode or decode.
func IsMalformed(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == ErrorMalformedMessage
}
