package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/templui/driveindex/internal/model"
)

// validate is the singleton validator instance
var validate = validator.New()

// ValidateRecord checks the structural rules of a main index record before
// it is written: a drive and file id must be present and byte_count > 0.
func ValidateRecord(rec *model.MainIndexRecord) error {
	if rec == nil {
		return errors.New("record is required")
	}

	if rec.DriveID == uuid.Nil {
		return errors.New("drive id is required")
	}

	if rec.FileID.IsNil() {
		return errors.New("file id is required")
	}

	err := validate.Struct(rec)
	if err != nil {
		return formatValidationError(err)
	}

	return nil
}

// formatValidationError turns validator output into "field: rule" messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}

	return errors.New(strings.Join(msgs, "; "))
}
