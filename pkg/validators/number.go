package validators

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateNonNegative checks that value is zero or greater.
func ValidateNonNegative(value int, fieldName string) *ValidationResult {
	if value < 0 {
		userFriendlyName := ToUserFriendlyName(fieldName)
		return NewValidationResult(false, fieldName,
			WithValue(strconv.Itoa(value)),
			WithMessage(fmt.Sprintf("%s must be non-negative.", userFriendlyName)),
			WithSuggestedAction(fmt.Sprintf("Please provide a %s of 0 or more.", strings.ToLower(userFriendlyName))),
			WithValidationCode(ValidationCodeInvalid),
		)
	}
	return NewValidationResult(true, fieldName,
		WithValue(strconv.Itoa(value)),
		WithValidationCode(ValidationCodeSuccess),
	)
}
