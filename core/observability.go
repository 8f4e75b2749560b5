package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	operationSucceeded = "success"
	operationRejected  = "rejected"
	operationFailed    = "failure"
)

// Tag keys copied from operation fields onto metrics when present.
var observedTagKeys = []string{"method", "asset_id", "network"}

// observeOperation logs and meters one service call. Unauthorized callers and
// insufficient relay attestation are reported as rejections at warn level;
// they are normal traffic for a bridge facing a public transport.
func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	elapsed := s.now().Sub(startedAt)
	status := operationStatus(err)

	logFields := cloneFields(fields)
	logFields["event_type"] = operation
	logFields["status"] = status
	logFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logFields["error"] = err.Error()
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && richErr != nil {
			logFields["error_category"] = string(richErr.Category)
			logFields["error_text_code"] = richErr.TextCode
			logFields["error_code"] = richErr.Code
		}
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
		"bridge":    s.config.Name,
	}
	for _, key := range observedTagKeys {
		value, ok := logFields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}

	if s.metricsRecorder != nil {
		s.metricsRecorder.IncCounter(ctx, "xbridge."+operation+".total", 1, maps.Clone(tags))
		s.metricsRecorder.ObserveHistogram(ctx, "xbridge."+operation+".duration_ms", float64(elapsed.Milliseconds()), maps.Clone(tags))
	}

	switch status {
	case operationRejected:
		s.logWithLevel(ctx, "warn", operation+" rejected", logFields)
	case operationFailed:
		s.logWithLevel(ctx, "error", operation+" failed", logFields)
	default:
		s.logWithLevel(ctx, "info", operation+" succeeded", logFields)
	}
}

func operationStatus(err error) string {
	switch {
	case err == nil:
		return operationSucceeded
	case IsAuthorizationError(err), IsProtocolMismatch(err):
		return operationRejected
	default:
		return operationFailed
	}
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	return maps.Clone(fields)
}

// flattenFields turns fields into sorted key/value logger args.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
}
