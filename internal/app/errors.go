package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(entity string, id any) *DomainError {
	return domainError(http.StatusNotFound, "not_found", fmt.Sprintf("%s not found", entity), map[string]any{"entity": entity, "id": id})
}

func forbidden(reason string) *DomainError {
	return domainError(http.StatusForbidden, "forbidden", reason, nil)
}

func unauthenticated(reason string) *DomainError {
	return domainError(http.StatusUnauthorized, "unauthenticated", reason, nil)
}

func conflict(reason string) *DomainError {
	return domainError(http.StatusConflict, "conflict", reason, nil)
}

func invalidState(reason string) *DomainError {
	return domainError(http.StatusConflict, "invalid_state", reason, nil)
}

func invalidArgument(reason string) *DomainError {
	return domainError(http.StatusBadRequest, "invalid_argument", reason, nil)
}

// Outcome reports how a state-changing operation concluded. Requests that
// find the resource already in the target state succeed with
// OutcomeAlreadyInState rather than erroring.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeChanged        Outcome = "changed"
	OutcomeAlreadyInState Outcome = "already_in_state"
)
