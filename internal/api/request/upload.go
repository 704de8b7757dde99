// Package request holds the decoded shapes of API request bodies.
package request

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// FilesField is the multipart form field carrying CSV exports.
const FilesField = "files"

// UploadFile is one export sent inline in a JSON body.
type UploadFile struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// AddFilesRequest represents the JSON request body for adding files to an import session.
type AddFilesRequest struct {
	Files []UploadFile `json:"files"`
}

// ToUploadedFiles converts the request into pipeline input, preserving order.
func (r AddFilesRequest) ToUploadedFiles() []model.UploadedFile {
	files := make([]model.UploadedFile, len(r.Files))
	for i, f := range r.Files {
		files[i] = model.UploadedFile{Name: f.Name, Text: f.Text}
	}
	return files
}

// IsMultipart reports whether the request carries a multipart/form-data body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.EqualFold(mediaType, "multipart/form-data")
}

// ReadMultipartFiles reads every part of the files field. Parts are read
// concurrently; the result keeps the order in which they were sent.
func ReadMultipartFiles(r *http.Request, maxMemory int64) ([]model.UploadedFile, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	headers := r.MultipartForm.File[FilesField]
	if len(headers) == 0 {
		return nil, errors.New("no parts in field " + FilesField)
	}

	files := make([]model.UploadedFile, len(headers))
	var g errgroup.Group
	for i, fh := range headers {
		g.Go(func() error {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", fh.Filename, err)
			}
			defer f.Close()

			data, err := io.ReadAll(f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", fh.Filename, err)
			}
			files[i] = model.UploadedFile{Name: fh.Filename, Text: string(data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}
