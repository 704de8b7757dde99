package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

const maxFileNameLength = 255

// ValidateUploadedFiles checks a batch of uploaded exports: at least one file,
// each with a .csv name of sane length and non-blank content.
func ValidateUploadedFiles(files []model.UploadedFile) error {
	if len(files) == 0 {
		return apperrors.ErrNoFiles
	}

	errors := make(map[string]string)
	for i, f := range files {
		field := fmt.Sprintf("files[%d]", i)
		name := strings.TrimSpace(f.Name)

		switch {
		case name == "":
			errors[field] = "file name is required"
		case len(name) > maxFileNameLength:
			errors[field] = fmt.Sprintf("file name must be %d characters or less", maxFileNameLength)
		case !strings.EqualFold(filepath.Ext(name), ".csv"):
			errors[field] = fmt.Sprintf("%s: only .csv files are accepted", name)
		case strings.TrimSpace(f.Text) == "":
			errors[field] = fmt.Sprintf("%s: %s", name, apperrors.ErrEmptyFile)
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
