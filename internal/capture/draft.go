package capture

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/zombor/receipt-capture/internal/form"
	"github.com/zombor/receipt-capture/internal/scanning"
)

// Draft is the expense record under edit.
// Category and Method always hold members of the configured vocabularies.
type Draft struct {
	Amount      string `json:"amount" validate:"required,numeric"`
	Category    string `json:"category" validate:"required"`
	Method      string `json:"method" validate:"required"`
	Description string `json:"description"`
}

// DraftField names an editable draft field
type DraftField string

const (
	FieldAmount      DraftField = "amount"
	FieldCategory    DraftField = "category"
	FieldMethod      DraftField = "method"
	FieldDescription DraftField = "description"
)

// DraftError explains why a draft cannot be submitted
type DraftError struct {
	Field   DraftField
	Message string
}

func (e *DraftError) Error() string {
	return e.Message
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (d Draft) expense() form.Expense {
	return form.Expense{
		Amount:      d.Amount,
		Category:    d.Category,
		Method:      d.Method,
		Description: d.Description,
	}
}

// validateDraft checks that the draft is complete enough to submit
func validateDraft(d Draft) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validating draft: %w", err)
	}

	fe := fieldErrs[0]
	field := DraftField(strings.ToLower(fe.Field()))
	switch fe.Tag() {
	case "required":
		return &DraftError{Field: field, Message: fmt.Sprintf("%s is required", fe.Field())}
	case "numeric":
		return &DraftError{Field: field, Message: fmt.Sprintf("%s must be a number", fe.Field())}
	}
	return &DraftError{Field: field, Message: fmt.Sprintf("%s is invalid", fe.Field())}
}

// applyEdit returns the draft with one field replaced. Amounts are sanitized;
// category and method must come from the vocabulary.
func applyEdit(d Draft, field DraftField, value string, vocab scanning.Vocabulary) (Draft, error) {
	switch field {
	case FieldAmount:
		d.Amount = SanitizeAmount(value)
	case FieldCategory:
		if !slices.Contains(vocab.Categories, value) {
			return d, &DraftError{Field: field, Message: fmt.Sprintf("unknown category %q", value)}
		}
		d.Category = value
	case FieldMethod:
		if !slices.Contains(vocab.Methods, value) {
			return d, &DraftError{Field: field, Message: fmt.Sprintf("unknown payment method %q", value)}
		}
		d.Method = value
	case FieldDescription:
		d.Description = value
	default:
		return d, &DraftError{Field: field, Message: fmt.Sprintf("unknown field %q", field)}
	}
	return d, nil
}
