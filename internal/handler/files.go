package handler

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/reelsaver/api/internal/client"
	"github.com/reelsaver/api/pkg/response"
)

// FilesHandler serves archives kept by the local storage backend
type FilesHandler struct {
	storage *client.LocalStorage
}

func NewFilesHandler(storage *client.LocalStorage) *FilesHandler {
	return &FilesHandler{storage: storage}
}

// Download handles GET /files/*?token=
// @Summary      Download an archive
// @Description  Serves a stored archive when the signed token is valid for its key
// @Tags         Files
// @Produce      application/zip
// @Param        token query string true "Signed download token"
// @Success      200 {file} binary
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Router       /files/{key} [get]
func (h *FilesHandler) Download(c *fiber.Ctx) error {
	key := c.Params("*")
	if err := h.storage.VerifyToken(key, c.Query("token")); err != nil {
		return response.Forbidden(c, "Download link is invalid or expired")
	}

	f, err := h.storage.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, client.ErrInvalidKey) {
			return response.NotFound(c, "File not found")
		}
		return response.ServiceError(c, "Failed to open file")
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return response.ServiceError(c, "Failed to open file")
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", client.DownloadName(key)))
	return c.SendStream(f, int(info.Size()))
}
