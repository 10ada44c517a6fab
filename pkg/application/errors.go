package application

import (
	"errors"
	"fmt"
	"strings"

	grantErrors "github.com/vlinder/social-grant/pkg/errors"
)

// ErrNotFound is returned by repositories when no application matches
var ErrNotFound = errors.New("application not found")

// ValidationError lists every field problem found in a submission or purchase
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// DuplicateApplicationError is returned when the citizen already has an active application
type DuplicateApplicationError struct {
	NationalID            string
	ExistingApplicationID string
}

func (e *DuplicateApplicationError) Error() string {
	return fmt.Sprintf("national id %s already has an active application %s", e.NationalID, e.ExistingApplicationID)
}

type InvalidStatusError struct {
	Status string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid status value %q", e.Status)
}

// DuplicateTransactionError is returned when a purchase transaction was already applied
type DuplicateTransactionError struct {
	ApplicationID string
	TransactionID string
}

func (e *DuplicateTransactionError) Error() string {
	return fmt.Sprintf("transaction %s already applied to application %s", e.TransactionID, e.ApplicationID)
}

// errDuplicateApplicationID signals a collision on the application id unique index
var errDuplicateApplicationID = errors.New("application id already exists")

// ToCoded converts a lifecycle error into the coded form used at the HTTP edge
func ToCoded(err error) *grantErrors.Error {
	if err == nil {
		return nil
	}

	var validation *ValidationError
	var duplicate *DuplicateApplicationError
	var invalidStatus *InvalidStatusError
	var duplicateTxn *DuplicateTransactionError

	switch {
	case errors.As(err, &validation):
		return grantErrors.ValidationFailed(validation.Messages)
	case errors.As(err, &duplicate):
		return grantErrors.Wrap(err, grantErrors.ErrCodeDuplicateApplication, "You already have a pending application").
			WithDetail("applicationId", duplicate.ExistingApplicationID)
	case errors.As(err, &invalidStatus):
		return grantErrors.Wrap(err, grantErrors.ErrCodeInvalidStatus, "Invalid status value")
	case errors.As(err, &duplicateTxn):
		return grantErrors.Wrap(err, grantErrors.ErrCodeDuplicateTransaction, "Transaction already confirmed").
			WithDetail("applicationId", duplicateTxn.ApplicationID).
			WithDetail("transactionId", duplicateTxn.TransactionID)
	case errors.Is(err, ErrNotFound):
		return grantErrors.Wrap(err, grantErrors.ErrCodeNotFound, "Application not found")
	}

	var coded *grantErrors.Error
	if errors.As(err, &coded) {
		return coded
	}
	return grantErrors.InternalWrap(err, "internal error")
}
