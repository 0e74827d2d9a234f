// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeAuthTokenMissing      Code = "auth.token.missing"
	CodeAuthTokenInvalid      Code = "auth.token.invalid"
	CodeAuthTokenExpired      Code = "auth.token.expired"
	CodeAuthAppUnrecognized   Code = "auth.app.denied"
	CodeAuthTokenRevoked      Code = "auth.token.revoked"
	CodeAuthVerifyUnavailable Code = "auth.verify.unavailable"

	CodeGatewayRequestInvalid  Code = "gateway.request.invalid_input"
	CodeGatewayMethodUnknown   Code = "gateway.method.not_found"
	CodeGatewayInternalFailure Code = "gateway.internal.failure"
	CodeGatewayStartFailure    Code = "gateway.start.failure"

	CodeToolNotFound         Code = "tool.registry.not_found"
	CodeToolSchemaInvalid    Code = "tool.schema.invalid"
	CodeToolArgsInvalid      Code = "tool.arguments.invalid_input"
	CodeToolHandlerFailure   Code = "tool.handler.failure"
	CodeToolTimeout          Code = "tool.handler.timeout"
	CodeToolRegisterConflict Code = "tool.register.conflict"
	CodeToolBackendFailure   Code = "tool.backend.failure"

	CodeLoopInvalidInput    Code = "agent.loop.invalid_input"
	CodeLoopFailure         Code = "agent.loop.failure"
	CodeLoopBudgetExhausted Code = "agent.loop.budget_exceeded"

	CodeEngineRequestInvalid  Code = "engine.request.invalid_input"
	CodeEngineUpstreamFailure Code = "engine.upstream.failure"
	CodeEngineNotFound        Code = "engine.registry.not_found"

	CodeConversationNotFound     Code = "conversation.get.not_found"
	CodeConversationUnpaired     Code = "conversation.invariant.invalid"
	CodeConversationStoreFailure Code = "conversation.store.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretInvalidInput   Code = "secret.uri.invalid_input"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"

	CodeCLIRequestFailure  Code = "cli.request.failure"
	CodeCLIResponseInvalid Code = "cli.response.invalid"
	CodeCLISetupFailure    Code = "cli.setup.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldConversationID(value string) Attr {
	return Field("conversation_id", value)
}

func FieldTool(value string) Attr {
	return Field("tool", value)
}

func FieldEngine(value string) Attr {
	return Field("engine", value)
}

func FieldAppID(value string) Attr {
	return Field("app_id", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeGatewayInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value"
}

func IsUnauthorized(err error) bool {
	r := reason(CodeOf(err))
	return r == "unauthorized" || r == "denied" || r == "revoked" || r == "missing" || r == "expired"
}

// IsTransient reports whether the error is a temporary condition the
// caller may retry, as opposed to a hard rejection.
func IsTransient(err error) bool {
	return reason(CodeOf(err)) == "unavailable"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsBudgetExceeded(err error) bool {
	return reason(CodeOf(err)) == "budget_exceeded"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsTransient(err):
		return http.StatusServiceUnavailable
	case IsBudgetExceeded(err):
		return http.StatusTooManyRequests
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeGatewayInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
