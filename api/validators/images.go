package validators

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"

	"github.com/angelmondragon/spoolhub-backend/internal/uploads"
	pkgerrors "github.com/angelmondragon/spoolhub-backend/pkg/errors"
)

// ImagesField is the multipart field carrying uploaded photos.
const ImagesField = "images"

const (
	multipartMemory = 32 << 20
	maxNameLen      = 255
)

var acceptedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/heic",
	"image/heif",
	"image/gif",
}

// ImageLimits bound a multipart image request.
type ImageLimits struct {
	MaxFiles     int
	MaxFileBytes int64
}

// ParseImages reads every file under the images field, sniffing the content
// type from the bytes rather than trusting the client header.
func ParseImages(r *http.Request, limits ImageLimits) ([]uploads.ImageFile, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
				WithDetails(map[string]any{"limit_bytes": tooLarge.Limit})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart request")
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File[ImagesField]
	if len(headers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one image is required").
			WithDetails(map[string]string{ImagesField: "is required"})
	}
	if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many images in one request").
			WithDetails(map[string]any{"max": limits.MaxFiles, "received": len(headers)})
	}

	files := make([]uploads.ImageFile, 0, len(headers))
	rejected := map[string]string{}
	for _, header := range headers {
		name := SanitizeFilename(header.Filename, maxNameLen)
		file, reason, err := readImage(header, limits.MaxFileBytes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read uploaded image")
		}
		if reason != "" {
			rejected[name] = reason
			continue
		}
		file.Name = name
		files = append(files, file)
	}
	if len(rejected) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported images").WithDetails(rejected)
	}
	return files, nil
}

func readImage(header *multipart.FileHeader, maxBytes int64) (uploads.ImageFile, string, error) {
	if maxBytes > 0 && header.Size > maxBytes {
		return uploads.ImageFile{}, fmt.Sprintf("exceeds %d bytes", maxBytes), nil
	}
	f, err := header.Open()
	if err != nil {
		return uploads.ImageFile{}, "", err
	}
	defer f.Close()

	var reader io.Reader = f
	if maxBytes > 0 {
		reader = io.LimitReader(f, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return uploads.ImageFile{}, "", err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return uploads.ImageFile{}, fmt.Sprintf("exceeds %d bytes", maxBytes), nil
	}
	if len(data) == 0 {
		return uploads.ImageFile{}, "is empty", nil
	}

	detected := mimetype.Detect(data)
	if !mimetype.EqualsAny(detected.String(), acceptedImageTypes...) {
		return uploads.ImageFile{}, "unsupported type " + detected.String(), nil
	}
	return uploads.ImageFile{
		MimeType: detected.String(),
		Ext:      detected.Extension(),
		Data:     data,
	}, "", nil
}
