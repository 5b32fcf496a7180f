// Package apperrors provides APLE's error taxonomy: Validation,
// Authorization, State, Policy, Capacity, Upstream, Transient, Fatal.
// Domain-level failures (not found, ownership, illegal state, policy
// violation, insufficient budget, open breaker) are reported through it.
// Not every error is: storage driver errors, outbound HTTP adapter
// errors (HTTPBackend, webhook sends), webhook body-marshal errors and
// money.Parse errors are returned as plain Go errors.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Class is the stable taxonomy category surfaced to callers.
type Class string

const (
	ClassValidation   Class = "VALIDATION"
	ClassAuthorization Class = "AUTHORIZATION"
	ClassState        Class = "STATE"
	ClassPolicy       Class = "POLICY"
	ClassCapacity     Class = "CAPACITY"
	ClassUpstream     Class = "UPSTREAM"
	ClassTransient    Class = "TRANSIENT"
	ClassFatal        Class = "FATAL"
)

// Code is a stable machine-readable identifier within a Class.
type Code string

const (
	CodeMissingField     Code = "VAL_MISSING_FIELD"
	CodeInvalidFormat    Code = "VAL_INVALID_FORMAT"
	CodeInvalidAmount    Code = "VAL_INVALID_AMOUNT"
	CodeInvalidAPIKey    Code = "AUTHZ_INVALID_KEY"
	CodeAgentPaused      Code = "AUTHZ_AGENT_PAUSED"
	CodeAgentDeactivated Code = "AUTHZ_AGENT_DEACTIVATED"
	CodeOwnerMismatch    Code = "AUTHZ_OWNER_MISMATCH"
	CodeIllegalTransition Code = "STATE_ILLEGAL_TRANSITION"
	CodeNotFound         Code = "STATE_NOT_FOUND"
	CodeAlreadyTerminal  Code = "STATE_ALREADY_TERMINAL"
	CodeRuleViolation    Code = "POLICY_RULE_VIOLATION"
	CodeInsufficientBudget Code = "CAPACITY_INSUFFICIENT_BUDGET"
	CodeExecutionFailed  Code = "UPSTREAM_EXECUTION_FAILED"
	CodeBreakerOpen      Code = "TRANSIENT_BREAKER_OPEN"
	CodeTimeout          Code = "TRANSIENT_TIMEOUT"
	CodeRetryExhausted   Code = "FATAL_RETRY_EXHAUSTED"
)

// AppError is the structured error every domain method returns.
type AppError struct {
	Class      Class
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Class, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Class, e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a structured detail field and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(class Class, code Code, message string, httpStatus int) *AppError {
	return &AppError{Class: class, Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(class Class, code Code, message string, httpStatus int, err error) *AppError {
	return &AppError{Class: class, Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Validation errors.

func MissingField(field string) *AppError {
	return New(ClassValidation, CodeMissingField, "missing required field", http.StatusBadRequest).
		WithDetail("field", field)
}

func InvalidFormat(field, reason string) *AppError {
	return New(ClassValidation, CodeInvalidFormat, "invalid field format", http.StatusBadRequest).
		WithDetail("field", field).WithDetail("reason", reason)
}

func InvalidAmount(reason string) *AppError {
	return New(ClassValidation, CodeInvalidAmount, "invalid amount", http.StatusBadRequest).
		WithDetail("reason", reason)
}

// Authorization errors.

func InvalidAPIKey() *AppError {
	return New(ClassAuthorization, CodeInvalidAPIKey, "invalid API key", http.StatusUnauthorized)
}

func AgentPaused() *AppError {
	return New(ClassAuthorization, CodeAgentPaused, "agent is paused", http.StatusForbidden).
		WithDetail("reason", "paused")
}

func AgentDeactivated() *AppError {
	return New(ClassAuthorization, CodeAgentDeactivated, "agent is deactivated", http.StatusForbidden).
		WithDetail("reason", "deactivated")
}

func OwnerMismatch(resource string) *AppError {
	return New(ClassAuthorization, CodeOwnerMismatch, "owner does not control this resource", http.StatusForbidden).
		WithDetail("resource", resource)
}

// State errors.

// IllegalTransition reports a rejected (from, to) transition. expected
// names the states that would have made this transition legal (per
// §7, "State errors include current_state and expected_states") — the
// caller supplies whichever reading applies: the legal target states
// for current, or the legal source state(s) for the attempted edge.
func IllegalTransition(current, from, to string, expected []string) *AppError {
	return New(ClassState, CodeIllegalTransition, "illegal state transition", http.StatusConflict).
		WithDetail("current_state", current).
		WithDetail("attempted_from", from).
		WithDetail("attempted_to", to).
		WithDetail("expected_states", expected)
}

func NotFound(resource, id string) *AppError {
	return New(ClassState, CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetail("resource", resource).WithDetail("id", id)
}

func AlreadyTerminal(current string) *AppError {
	return New(ClassState, CodeAlreadyTerminal, "resource is already in a terminal state", http.StatusConflict).
		WithDetail("current_state", current)
}

// Policy errors.

func RuleViolation(violations []string) *AppError {
	return New(ClassPolicy, CodeRuleViolation, "proposal violates agent rules", http.StatusUnprocessableEntity).
		WithDetail("violations", violations)
}

// Capacity errors.

func InsufficientBudget(remaining, requested string) *AppError {
	return New(ClassCapacity, CodeInsufficientBudget, "insufficient budget remaining", http.StatusPaymentRequired).
		WithDetail("remaining", remaining).
		WithDetail("requested", requested)
}

// Upstream errors.

func ExecutionFailed(backend string, fallbackUsed bool, err error) *AppError {
	return Wrap(ClassUpstream, CodeExecutionFailed, "execution backend failed", http.StatusBadGateway, err).
		WithDetail("backend", backend).
		WithDetail("fallback_used", fallbackUsed)
}

// Transient errors.

func BreakerOpen(service string, retryAfter string) *AppError {
	return New(ClassTransient, CodeBreakerOpen, "circuit breaker open", http.StatusServiceUnavailable).
		WithDetail("service", service).
		WithDetail("retry_after", retryAfter)
}

func Timeout(operation string) *AppError {
	return New(ClassTransient, CodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetail("operation", operation)
}

// Fatal errors.

func RetryExhausted(attempts int) *AppError {
	return New(ClassFatal, CodeRetryExhausted, "retry attempts exhausted", http.StatusInternalServerError).
		WithDetail("attempts", attempts)
}

// Helpers mirroring the taxonomy's error-chain inspection.

func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func Is(err error, class Class) bool {
	if appErr := As(err); appErr != nil {
		return appErr.Class == class
	}
	return false
}

func HTTPStatus(err error) int {
	if appErr := As(err); appErr != nil {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
