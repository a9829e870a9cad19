package api

import (
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
)

// multipartOverhead leaves room for boundaries and headers around the file part
const multipartOverhead = 64 << 10

// UploadResponse is the inline file reference a client attaches to send_file_message
type UploadResponse struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// POST /upload - multipart field "file", returned base64 inline
// TECHNICAL DISCOVERY: Nothing is written to disk; the payload travels back to the
// client and on through send_file_message into the volatile history store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	bodyLimit := s.maxFileSize + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := r.ParseMultipartForm(s.maxFileSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > bodyLimit {
			s.sendError(w, "File exceeds the 10 MiB limit", http.StatusRequestEntityTooLarge)
			return
		}
		s.sendError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		s.sendError(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	if header.Size > s.maxFileSize {
		s.sendError(w, "File exceeds the 10 MiB limit", http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxFileSize+1))
	if err != nil {
		log.Printf("Upload read failed for %s: %v", name, err)
		s.sendError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.maxFileSize {
		s.sendError(w, "File exceeds the 10 MiB limit", http.StatusRequestEntityTooLarge)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	s.sendJSON(w, http.StatusOK, UploadResponse{
		Name: name,
		Type: contentType,
		Size: int64(len(data)),
		Data: base64.StdEncoding.EncodeToString(data),
	})
}
