package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/cache"
	"github.com/mrt-jh/smart-image-editor/pkg/catalog"
	"github.com/mrt-jh/smart-image-editor/pkg/compose"
	"github.com/mrt-jh/smart-image-editor/pkg/storage"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

// RenderRequest is the wire form of a render. The template is named either
// by Template or by BannerType and DeviceType. Without text elements the
// template defaults are drawn.
type RenderRequest struct {
	Template      string         `json:"template,omitempty"`
	BannerType    string         `json:"bannerType,omitempty"`
	DeviceType    string         `json:"deviceType,omitempty"`
	BackgroundURL string         `json:"backgroundUrl,omitempty"`
	LogoURL       string         `json:"logoUrl,omitempty"`
	LogoURLs      []string       `json:"logoUrls,omitempty"`
	TextElements  []text.Element `json:"textElements,omitempty"`
	LogoHeight    float64        `json:"logoHeight,omitempty"`
	Quality       int            `json:"quality,omitempty"`
}

// Uploads are local files accompanying a RenderRequest. They take
// precedence over the URLs of the request.
type Uploads struct {
	Background *asset.Blob
	Logo       *asset.Blob
	Logos      []*asset.Blob
}

// TemplateKey returns the catalog key the request names.
func (r RenderRequest) TemplateKey() string {
	if r.Template != "" {
		return r.Template
	}
	return catalog.Key(r.BannerType, r.DeviceType)
}

// Build resolves the template and turns r into a compositor request.
func (r RenderRequest) Build(cat *catalog.Catalog, up Uploads) (compose.Request, error) {
	tpl, err := cat.Lookup(r.TemplateKey())
	if err != nil {
		return compose.Request{}, err
	}
	els := r.TextElements
	if len(els) == 0 {
		els = tpl.Elements()
	}
	return compose.Request{
		Template:   tpl,
		Background: asset.Pick(up.Background, r.BackgroundURL),
		Logo:       asset.Pick(up.Logo, r.LogoURL),
		Logos:      asset.PickList(up.Logos, r.LogoURLs),
		Elements:   els,
		LogoHeight: r.LogoHeight,
	}, nil
}

// cacheKey returns the frame cache key of req, and false when req carries
// local blobs, whose fingerprints do not identify their content.
func cacheKey(req compose.Request, quality int) (string, bool) {
	if req.Background.IsBlob() || req.Logo.IsBlob() {
		return "", false
	}
	for _, l := range req.Logos {
		if l.IsBlob() {
			return "", false
		}
	}
	k := cache.RenderKey{
		Template:   req.Template.Key,
		Background: req.Background.Fingerprint(),
		Logo:       req.Logo.Fingerprint(),
		Logos:      asset.Fingerprints(req.Logos),
		Elements:   req.Elements,
		LogoHeight: req.LogoHeight,
		Format:     "jpeg",
		Quality:    quality,
	}
	h := k.String()
	return h, h != ""
}

func (s *Server) handleTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": s.opts.Catalog.Templates()})
}

func (s *Server) handleTemplate(c *gin.Context) {
	tpl, err := s.opts.Catalog.Lookup(c.Param("key"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": tpl, "elements": tpl.Elements()})
}

// handleRender renders a banner to JPEG. The body is either a JSON
// RenderRequest, or a multipart form with the request JSON in the
// "request" field and optional "background", "logo" and "logos" files.
func (s *Server) handleRender(c *gin.Context) {
	var (
		rr RenderRequest
		up Uploads
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := json.Unmarshal([]byte(c.PostForm("request")), &rr); err != nil {
			badRequest(c, "invalid request field", err)
			return
		}
		var err error
		if up, err = s.readUploads(c); err != nil {
			fail(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&rr); err != nil {
		badRequest(c, "invalid request body", err)
		return
	}

	req, err := rr.Build(s.opts.Catalog, up)
	if err != nil {
		fail(c, err)
		return
	}
	quality := rr.Quality
	if quality < 1 || quality > 100 {
		quality = s.opts.JPEGQuality
	}

	key, cacheable := cacheKey(req, quality)
	cacheable = cacheable && s.opts.Frames != nil
	if cacheable {
		if f, ok := s.opts.Frames.Get(key); ok {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, f.ContentType, f.Data)
			return
		}
	}

	frame, err := s.opts.Pool.Render(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := compose.EncodeJPEG(&buf, frame.Image, quality); err != nil {
		fail(c, err)
		return
	}

	if cacheable {
		b := frame.Image.Bounds()
		err := s.opts.Frames.Put(key, cache.Frame{
			Data:        buf.Bytes(),
			ContentType: asset.MIMEJPEG,
			Width:       b.Dx(),
			Height:      b.Dy(),
		})
		if err != nil {
			s.log.Warn("server: cache frame", "error", err)
		}
		c.Header("X-Cache", "MISS")
	}
	c.Header("X-Render-Generation", strconv.FormatUint(frame.Result.Generation, 10))
	c.Data(http.StatusOK, asset.MIMEJPEG, buf.Bytes())
}

// readUploads collects and validates the image files of a multipart
// render request.
func (s *Server) readUploads(c *gin.Context) (Uploads, error) {
	var up Uploads
	form, err := c.MultipartForm()
	if err != nil {
		return up, fmt.Errorf("%w: %v", errBadForm, err)
	}
	limits := s.opts.Storage.Limits()
	one := func(field string, k storage.Kind) (*asset.Blob, error) {
		files := form.File[field]
		if len(files) == 0 {
			return nil, nil
		}
		return readBlob(files[0], k, limits)
	}
	if up.Background, err = one("background", storage.KindBackground); err != nil {
		return up, err
	}
	if up.Logo, err = one("logo", storage.KindLogo); err != nil {
		return up, err
	}
	for _, fh := range form.File["logos"] {
		b, err := readBlob(fh, storage.KindLogo, limits)
		if err != nil {
			return up, err
		}
		up.Logos = append(up.Logos, b)
	}
	return up, nil
}

var errBadForm = errors.New("server: invalid multipart form")

// readBlob reads an uploaded file, refusing more than the kind allows, and
// validates its content.
func readBlob(fh *multipart.FileHeader, k storage.Kind, limits storage.Limits) (*asset.Blob, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("server: open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	limit := limits.Image
	if k == storage.KindLogo {
		limit = limits.Logo
	}
	// One byte over the limit is enough for validation to reject the size.
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("server: read upload %s: %w", fh.Filename, err)
	}
	b := asset.NewBlob(fh.Filename, fh.Header.Get("Content-Type"), data)
	if _, err := storage.ValidateUpload(k, b, limits); err != nil {
		return nil, err
	}
	return b, nil
}
