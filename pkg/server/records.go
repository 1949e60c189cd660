package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/compose"
	"github.com/mrt-jh/smart-image-editor/pkg/records"
	"github.com/mrt-jh/smart-image-editor/pkg/storage"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

// --- teams and projects ----------------------------------------------------

func (s *Server) handleListTeams(c *gin.Context) {
	teams, err := s.opts.Records.ListTeams(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams, "count": len(teams)})
}

func (s *Server) handleCreateTeam(c *gin.Context) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	team, err := s.opts.Records.CreateTeam(c.Request.Context(), body.Name, body.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

func (s *Server) handleDeleteTeam(c *gin.Context) {
	if err := s.opts.Records.DeleteTeam(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.opts.Records.ListProjects(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "count": len(projects)})
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var p records.Project
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	p, err := s.opts.Records.CreateProject(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleGetProject(c *gin.Context) {
	p, err := s.opts.Records.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	if err := s.opts.Records.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- banners ---------------------------------------------------------------

func (s *Server) handleListBanners(c *gin.Context) {
	banners, err := s.opts.Records.ListBanners(c.Request.Context(), records.BannerFilter{
		ProjectID:  c.Query("projectId"),
		Status:     c.Query("status"),
		BannerType: c.Query("bannerType"),
		DeviceType: c.Query("deviceType"),
		Search:     c.Query("search"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banners": banners, "count": len(banners)})
}

func (s *Server) handleGetBanner(c *gin.Context) {
	b, err := s.opts.Records.GetBanner(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// handleCreateBanner stores a banner. The canvas size defaults to the
// size of the banner's template.
func (s *Server) handleCreateBanner(c *gin.Context) {
	var b records.Banner
	if err := c.ShouldBindJSON(&b); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	if b.CanvasWidth == 0 && b.CanvasHeight == 0 {
		tpl, err := s.opts.Catalog.Get(b.BannerType, b.DeviceType)
		if err != nil {
			fail(c, err)
			return
		}
		b.CanvasWidth, b.CanvasHeight = tpl.Width, tpl.Height
	}
	b, err := s.opts.Records.CreateBanner(c.Request.Context(), b)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (s *Server) handleUpdateBanner(c *gin.Context) {
	var b records.Banner
	if err := c.ShouldBindJSON(&b); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	b.ID = c.Param("id")
	b, err := s.opts.Records.UpdateBannerContent(c.Request.Context(), b)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	var body struct {
		Status     string `json:"status"`
		ApprovedBy string `json:"approvedBy"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	b, err := s.opts.Records.UpdateBannerStatus(c.Request.Context(), c.Param("id"), body.Status, body.ApprovedBy)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (s *Server) handleDeleteBanner(c *gin.Context) {
	if err := s.opts.Records.DeleteBanner(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handlePublish renders a saved banner, stores the JPEG and a WebP
// thumbnail, and records both URLs on the banner.
func (s *Server) handlePublish(c *gin.Context) {
	ctx := c.Request.Context()
	b, err := s.opts.Records.GetBanner(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	els, err := bannerElements(b)
	if err != nil {
		fail(c, err)
		return
	}
	rr := RenderRequest{
		BannerType:    b.BannerType,
		DeviceType:    b.DeviceType,
		BackgroundURL: b.BackgroundImageURL,
		LogoURL:       b.LogoURL,
		LogoURLs:      b.LogoURLs,
		TextElements:  els,
	}
	req, err := rr.Build(s.opts.Catalog, Uploads{})
	if err != nil {
		fail(c, err)
		return
	}
	frame, err := s.opts.Pool.Render(ctx, req)
	if err != nil {
		fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := compose.EncodeJPEG(&buf, frame.Image, s.opts.JPEGQuality); err != nil {
		fail(c, err)
		return
	}
	finalURL, err := s.opts.Storage.Upload(ctx, storage.KindFinal, asset.NewBlob(b.ID+".jpg", asset.MIMEJPEG, buf.Bytes()))
	if err != nil {
		fail(c, err)
		return
	}
	thumbURL, err := s.opts.Storage.SaveThumbnail(ctx, frame.Image, s.opts.ThumbnailWidth)
	if err != nil {
		fail(c, err)
		return
	}

	b.FinalBannerURL, b.ThumbnailURL = finalURL, thumbURL
	b, err = s.opts.Records.UpdateBannerContent(ctx, b)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// bannerElements decodes the stored text elements. An empty value leaves
// the template defaults in place.
func bannerElements(b records.Banner) ([]text.Element, error) {
	raw := bytes.TrimSpace(b.TextElements)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var els []text.Element
	if err := json.Unmarshal(raw, &els); err != nil {
		return nil, fmt.Errorf("%w: banner %s text elements: %v", records.ErrInvalid, b.ID, err)
	}
	return els, nil
}

// --- history and comments --------------------------------------------------

func (s *Server) handleListHistory(c *gin.Context) {
	hist, err := s.opts.Records.ListHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": hist, "count": len(hist)})
}

func (s *Server) handleCreateHistory(c *gin.Context) {
	var body struct {
		ChangeNote string `json:"changeNote"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	h, err := s.opts.Records.CreateHistory(c.Request.Context(), c.Param("id"), body.ChangeNote)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h)
}

func (s *Server) handleListComments(c *gin.Context) {
	comments, err := s.opts.Records.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "count": len(comments)})
}

func (s *Server) handleCreateComment(c *gin.Context) {
	var cm records.Comment
	if err := c.ShouldBindJSON(&cm); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}
	cm.BannerID = c.Param("id")
	cm, err := s.opts.Records.CreateComment(c.Request.Context(), cm)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (s *Server) handleDeleteComment(c *gin.Context) {
	if err := s.opts.Records.DeleteComment(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
