// Package businessflow contains the core business logic and use cases for survey workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Survey-related errors
	ErrSurveyNotFound      = errors.New("survey not found")
	ErrSurveyInactive      = errors.New("survey is not accepting responses")
	ErrSurveyExpired       = errors.New("survey has expired")
	ErrSurveyAccessDenied  = errors.New("survey access denied")
	ErrSurveyTitleRequired = errors.New("survey title is required")
	ErrQuestionsRequired   = errors.New("at least one question is required")
	ErrTooManyQuestions    = errors.New("too many questions")
	ErrExpiryImmutable     = errors.New("survey expiry cannot be changed")

	// Response-related errors
	ErrDuplicateResponse = errors.New("response already submitted for this question")
	ErrQuestionNotFound  = errors.New("question not found in survey")
	ErrAudioRequired     = errors.New("audio file is required")
	ErrAudioTooLarge     = errors.New("audio file is too large")
	ErrAudioTypeInvalid  = errors.New("audio file type is not supported")
	ErrUploadFailed      = errors.New("audio upload failed")
	ErrResponseNotFound  = errors.New("response not found")
	ErrEmailAlreadySet   = errors.New("email already set on response")

	// Analytics errors
	ErrEventNameRequired = errors.New("event name is required")
	ErrFunnelNotFound    = errors.New("funnel not found")

	// Event collection errors
	ErrCollectionNotFound = errors.New("event collection not found")
	ErrDuplicateSlug      = errors.New("slug already exists")

	// Creator-related errors
	ErrCreatorNotFound    = errors.New("creator not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrEmailAlreadyExists = errors.New("email already exists")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsSurveyNotFound(err error) bool {
	return errors.Is(err, ErrSurveyNotFound)
}

func IsSurveyInactive(err error) bool {
	return errors.Is(err, ErrSurveyInactive)
}

func IsSurveyExpired(err error) bool {
	return errors.Is(err, ErrSurveyExpired)
}

func IsSurveyAccessDenied(err error) bool {
	return errors.Is(err, ErrSurveyAccessDenied)
}

func IsDuplicateResponse(err error) bool {
	return errors.Is(err, ErrDuplicateResponse)
}

func IsQuestionNotFound(err error) bool {
	return errors.Is(err, ErrQuestionNotFound)
}

func IsUploadFailed(err error) bool {
	return errors.Is(err, ErrUploadFailed)
}

func IsResponseNotFound(err error) bool {
	return errors.Is(err, ErrResponseNotFound)
}

func IsFunnelNotFound(err error) bool {
	return errors.Is(err, ErrFunnelNotFound)
}

func IsCollectionNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

func IsDuplicateSlug(err error) bool {
	return errors.Is(err, ErrDuplicateSlug)
}

func IsCreatorNotFound(err error) bool {
	return errors.Is(err, ErrCreatorNotFound)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsEmailAlreadyExists(err error) bool {
	return errors.Is(err, ErrEmailAlreadyExists)
}
