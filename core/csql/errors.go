package csql

import (
	"errors"

	"github.com/lib/pq"
)

// postgres error codes this service reacts to
const (
	codeUniqueViolation      pq.ErrorCode = "23505"
	codeCheckViolation       pq.ErrorCode = "23514"
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
)

func errorCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

// IsUniqueViolation returns true if err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return errorCode(err) == codeUniqueViolation
}

// IsCheckViolation returns true if err is a check constraint violation
func IsCheckViolation(err error) bool {
	return errorCode(err) == codeCheckViolation
}

// IsTransient returns true if the transaction failed for reasons that go away
// when it is retried, i.e. a serialization failure or a deadlock
func IsTransient(err error) bool {
	switch errorCode(err) {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
