package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/putto11262002/relay/pkg/router"
)

// maxUploadSize caps the multipart form parsed into memory.
const maxUploadSize = 25 << 20

// FileHandler stores uploaded files under a local directory and hands back
// the URL the relay clients attach to their messages. The relay core never
// looks inside the files; it only ever sees the URL and filename.
type FileHandler struct {
	dir string
}

func NewFileHandler(dir string) (*FileHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}
	return &FileHandler{dir: dir}, nil
}

type UploadResponse struct {
	FileURL  string `json:"fileUrl"`
	Filename string `json:"filename"`
}

func (h *FileHandler) UploadHandler(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return router.NewJsonError(http.StatusBadRequest, "file field required")
	}
	defer file.Close()

	// Stored names are uuid-prefixed so uploads never collide; the original
	// filename survives in the response for display.
	stored := fmt.Sprintf("%s-%s", uuid.New().String(), filepath.Base(header.Filename))

	dst, err := os.Create(filepath.Join(h.dir, stored))
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	res := UploadResponse{
		FileURL:  "/uploads/" + stored,
		Filename: header.Filename,
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// ServeUploads returns a handler that serves previously uploaded files.
func (h *FileHandler) ServeUploads() http.Handler {
	return http.StripPrefix("/uploads/", http.FileServer(http.Dir(h.dir)))
}
