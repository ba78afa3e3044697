package handlers

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/requestctx"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

const multipartMemory = 8 << 20

// streamAttachment copies content to w and closes it. inline selects the Content-Disposition.
func streamAttachment(w http.ResponseWriter, r *http.Request, content services.AttachmentContent, inline bool) {
	defer content.Body.Close()

	contentType := content.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if content.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.Size, 10))
	}
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	if content.Filename != "" {
		disposition = mime.FormatMediaType(disposition, map[string]string{"filename": content.Filename})
	}
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, content.Body); err != nil {
		requestctx.Logger(r.Context()).Warn("attachment stream interrupted", zap.String("ref", content.Ref), zap.Error(err))
	}
}

// multipartFiles returns the uploaded parts under any of the given field names.
func multipartFiles(r *http.Request, fields ...string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	var out []*multipart.FileHeader
	for _, field := range fields {
		out = append(out, r.MultipartForm.File[field]...)
	}
	return out
}

func uploadFromHeader(header *multipart.FileHeader) (services.AttachmentUpload, func(), error) {
	file, err := header.Open()
	if err != nil {
		return services.AttachmentUpload{}, nil, fmt.Errorf("open upload %q: %w", header.Filename, err)
	}
	return services.AttachmentUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, func() { _ = file.Close() }, nil
}
