package validators

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ToUserFriendlyName converts snake_case and camelCase field names to user-friendly names.
// Examples: "account_id" -> "Account id", "countryCode" -> "Country code"
func ToUserFriendlyName(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}

	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	for _, r := range fieldName {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && len(current) > 0 && !unicode.IsUpper(current[len(current)-1]):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()

	if len(words) == 0 {
		return fieldName
	}
	words[0] = cases.Title(language.English).String(words[0])
	return strings.Join(words, " ")
}

// ValidateRequired checks that value is neither empty nor whitespace only.
func ValidateRequired(value string, fieldName string) *ValidationResult {
	if strings.TrimSpace(value) == "" {
		userFriendlyName := ToUserFriendlyName(fieldName)
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must not be blank.", userFriendlyName)),
			WithSuggestedAction(fmt.Sprintf("Please provide a valid %s.", strings.ToLower(userFriendlyName))),
			WithValidationCode(ValidationCodeRequired),
		)
	}
	return NewValidationResult(true, fieldName,
		WithValue(value),
		WithValidationCode(ValidationCodeSuccess),
	)
}
