package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// UploadFields are the multipart field names checked, in order.
var UploadFields = []string{"file", "image"}

// readUpload extracts the image bytes from a multipart form or a raw
// image/* or application/octet-stream body.
func readUpload(r *http.Request) ([]byte, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil, &requestError{status: http.StatusUnsupportedMediaType, msg: "Content-Type is required"}
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, &requestError{status: http.StatusUnsupportedMediaType, msg: "malformed Content-Type"}
	}
	switch {
	case mt == "multipart/form-data":
		return readMultipart(r)
	case strings.HasPrefix(mt, "image/"), mt == "application/octet-stream":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err)
		}
		return data, nil
	default:
		return nil, &requestError{
			status: http.StatusUnsupportedMediaType,
			msg:    fmt.Sprintf("unsupported Content-Type %q: send multipart/form-data, image/* or application/octet-stream", mt),
		}
	}
}

func readMultipart(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return nil, bodyError(err)
	}
	defer r.MultipartForm.RemoveAll()
	for _, name := range UploadFields {
		f, _, err := r.FormFile(name)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, bodyError(err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, bodyError(err)
		}
		return data, nil
	}
	return nil, badRequest(`missing image upload: use form field "file"`)
}

// bodyError maps read failures to 400. An oversized body is a bad request
// like any other unreadable one.
func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return badRequest(fmt.Sprintf("request body exceeds %d bytes", mbe.Limit))
	}
	return badRequest("unreadable request body")
}
