package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-xbridge/codec"
)

const (
	BridgeErrorUnauthorized     = "BRIDGE_UNAUTHORIZED"
	BridgeErrorProtocolMismatch = "BRIDGE_PROTOCOL_MISMATCH"
	BridgeErrorConfiguration    = "BRIDGE_CONFIGURATION"
	BridgeErrorInvalidValue     = "BRIDGE_INVALID_VALUE"
	BridgeErrorMalformedMessage = codec.ErrorMalformedMessage
	BridgeErrorExternalFailure  = "BRIDGE_EXTERNAL_FAILURE"
	BridgeErrorNotFound         = "BRIDGE_NOT_FOUND"
	BridgeErrorInternal         = "BRIDGE_INTERNAL_ERROR"
	BridgeErrorDeliveryDeferred = "BRIDGE_DELIVERY_DEFERRED"
)

func authorizationError(message string, metadata map[string]any) *goerrors.Error {
	return newBridgeError(message, goerrors.CategoryAuthz, BridgeErrorUnauthorized, metadata)
}

func protocolMismatchError(message string, metadata map[string]any) *goerrors.Error {
	return newBridgeError(message, goerrors.CategoryAuth, BridgeErrorProtocolMismatch, metadata)
}

func configurationError(message string, metadata map[string]any) *goerrors.Error {
	return newBridgeError(message, goerrors.CategoryConflict, BridgeErrorConfiguration, metadata)
}

func valueError(message string, metadata map[string]any) *goerrors.Error {
	return newBridgeError(message, goerrors.CategoryValidation, BridgeErrorInvalidValue, metadata)
}

func externalError(source error, message string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return newBridgeError(message, goerrors.CategoryExternal, BridgeErrorExternalFailure, metadata)
	}
	var richErr *goerrors.Error
	if goerrors.As(source, &richErr) && richErr.TextCode != "" {
		return ensureBridgeErrorEnvelope(richErr)
	}
	err := goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithTextCode(BridgeErrorExternalFailure)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return ensureBridgeErrorEnvelope(err)
}

func newBridgeError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return ensureBridgeErrorEnvelope(err)
}

// DeliveryDeferredError reports a delivery that cannot be handled yet because
// an earlier attempt still holds its claim or is backing off. The sender must
// redeliver later; the message is neither applied nor rejected.
func DeliveryDeferredError(key string, reason string) *goerrors.Error {
	return newBridgeError("core: delivery deferred, "+reason, goerrors.CategoryConflict, BridgeErrorDeliveryDeferred, map[string]any{
		"claim_key": key,
	})
}

// IsDeliveryDeferred reports whether err asks for a later redelivery.
func IsDeliveryDeferred(err error) bool {
	return hasTextCode(err, BridgeErrorDeliveryDeferred)
}

func IsAuthorizationError(err error) bool {
	return hasTextCode(err, BridgeErrorUnauthorized)
}

func IsProtocolMismatch(err error) bool {
	return hasTextCode(err, BridgeErrorProtocolMismatch)
}

func IsConfigurationError(err error) bool {
	return hasTextCode(err, BridgeErrorConfiguration)
}

func IsValueError(err error) bool {
	return hasTextCode(err, BridgeErrorInvalidValue)
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func bridgeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBridgeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newBridgeError(err.Error(), goerrors.CategoryNotFound, BridgeErrorNotFound, nil)
	case strings.Contains(msg, "already mapped"), strings.Contains(msg, "not configured"):
		return newBridgeError(err.Error(), goerrors.CategoryConflict, BridgeErrorConfiguration, nil)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "missing"):
		return newBridgeError(err.Error(), goerrors.CategoryValidation, BridgeErrorInvalidValue, nil)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBridgeErrorEnvelope(mapped)
}

func ensureBridgeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = bridgeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBridgeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBridgeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return BridgeErrorMalformedMessage
	case goerrors.CategoryValidation:
		return BridgeErrorInvalidValue
	case goerrors.CategoryNotFound:
		return BridgeErrorNotFound
	case goerrors.CategoryAuth:
		return BridgeErrorProtocolMismatch
	case goerrors.CategoryAuthz:
		return BridgeErrorUnauthorized
	case goerrors.CategoryConflict:
		return BridgeErrorConfiguration
	case goerrors.CategoryExternal:
		return BridgeErrorExternalFailure
	default:
		return BridgeErrorInternal
	}
}

func bridgeHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func unauthorizedCaller(role string, caller string) *goerrors.Error {
	return authorizationError(fmt.Sprintf("core: caller is not the %s", role), map[string]any{
		"role":   role,
		"caller": caller,
	})
}
