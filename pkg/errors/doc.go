// Package errors provides structured errors with codes that map onto HTTP statuses
// for the social grant API.
//
// # Basic Usage
//
//	import "github.com/vlinder/social-grant/pkg/errors"
//
//	err := errors.New(errors.ErrCodeMissingRequiredFields, "Missing required fields")
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to load application")
//	err := errors.ValidationFailed([]string{"National ID is required"})
//
// # Status Mapping
//
//   - ErrCodeInvalidInput, ErrCodeValidationFailed, ErrCodeDuplicateApplication, ErrCodeInvalidStatus → 400
//   - ErrCodeNotFound → 404
//   - ErrCodeDuplicateTransaction → 409
//   - ErrCodeRateLimitExceeded → 429
//   - ErrCodeUpstream, ErrCodeDecode, ErrCodeKeyImport, ErrCodeSigning → 500
//
// Handlers inspect codes with IsCode and read structured details such as the existing
// application id or per-field validation messages from Error.Details.
package errors
