package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Content errors
	CodeMalformedContent       Code = "MALFORMED_CONTENT"
	CodeContentUnknownOwner    Code = "CONTENT_UNKNOWN_OWNER"
	CodeContentDuplicateEntity Code = "CONTENT_DUPLICATE_ENTITY"
	CodeContentOwnershipCycle  Code = "CONTENT_OWNERSHIP_CYCLE"

	// Prerequisite errors
	CodePrereqInvalidExpression Code = "PREREQ_INVALID_EXPRESSION"
	CodePrereqUnknownPredicate  Code = "PREREQ_UNKNOWN_PREDICATE"

	// Evaluation errors
	CodeEvaluationError Code = "EVALUATION_ERROR"

	// Character errors
	CodeCharacterEmptyID      Code = "CHARACTER_EMPTY_ID"
	CodeCharacterInvalidLevel Code = "CHARACTER_INVALID_LEVEL"
	CodeCharacterInvalidScore Code = "CHARACTER_INVALID_ABILITY_SCORE"
	CodeEntityEmptyID         Code = "ENTITY_EMPTY_ID"
	CodeEntityUnknown         Code = "ENTITY_UNKNOWN"

	// Mutation errors
	CodeMutationBlocked     Code = "MUTATION_BLOCKED"
	CodeMutationEmptyBatch  Code = "MUTATION_EMPTY_BATCH"
	CodeMutationInvalidMode Code = "MUTATION_INVALID_GOVERNANCE_MODE"
	CodeMutationInFlight    Code = "MUTATION_IN_FLIGHT"

	// Storage errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeRevisionConflict   Code = "REVISION_CONFLICT"
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
)

// HTTPStatus maps an error code to the HTTP status the REST surface returns.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - caller sent something invalid
	case CodeMalformedContent,
		CodeContentUnknownOwner,
		CodeContentDuplicateEntity,
		CodeContentOwnershipCycle,
		CodePrereqInvalidExpression,
		CodePrereqUnknownPredicate,
		CodeCharacterEmptyID,
		CodeCharacterInvalidLevel,
		CodeCharacterInvalidScore,
		CodeEntityEmptyID,
		CodeMutationEmptyBatch,
		CodeMutationInvalidMode:
		return http.StatusBadRequest

	// Conflict - state doesn't allow the operation right now
	case CodeMutationBlocked,
		CodeMutationInFlight,
		CodeRevisionConflict:
		return http.StatusConflict

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeEntityUnknown:
		return http.StatusNotFound

	// Bad gateway - the persistence collaborator failed
	case CodePersistenceFailure:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
