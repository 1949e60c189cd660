package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrt-jh/smart-image-editor/pkg/storage"
)

// handleUpload stores the "file" form field for the kind in the path
// (background, logo, final or thumbnail) and returns its public URL.
func (s *Server) handleUpload(c *gin.Context) {
	kind, err := storage.ParseKind(c.Param("kind"))
	if err != nil {
		badRequest(c, err.Error(), nil)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file field", err)
		return
	}
	blob, err := readBlob(fh, kind, s.opts.Storage.Limits())
	if err != nil {
		fail(c, err)
		return
	}
	url, err := s.opts.Storage.Upload(c.Request.Context(), kind, blob)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url, "kind": kind, "size": blob.Size})
}

func (s *Server) handleDeleteUpload(c *gin.Context) {
	if err := s.opts.Storage.Delete(c.Param("bucket"), c.Param("name")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
