package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mrt-jh/smart-image-editor/pkg/asset"
	"github.com/mrt-jh/smart-image-editor/pkg/cache"
	"github.com/mrt-jh/smart-image-editor/pkg/catalog"
	"github.com/mrt-jh/smart-image-editor/pkg/compose"
	"github.com/mrt-jh/smart-image-editor/pkg/config"
	"github.com/mrt-jh/smart-image-editor/pkg/preview"
	"github.com/mrt-jh/smart-image-editor/pkg/records"
	"github.com/mrt-jh/smart-image-editor/pkg/server"
	"github.com/mrt-jh/smart-image-editor/pkg/storage"
	"github.com/mrt-jh/smart-image-editor/pkg/text"
)

// engine is the rendering stack shared by every command.
type engine struct {
	catalog *catalog.Catalog
	fonts   *text.FontBook
	store   *storage.Store
	loader  *asset.Loader
	pool    *compose.Pool
}

func newEngine(cfg *config.Config, logger *slog.Logger) (*engine, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	fonts, err := text.NewFontBook(text.FontFiles{
		Regular: cfg.Fonts.Regular,
		Medium:  cfg.Fonts.Medium,
		Bold:    cfg.Fonts.Bold,
	})
	if err != nil {
		return nil, err
	}

	remote := asset.NewHTTPFetcher(
		cfg.Render.FetchTimeout.Or(15*time.Second),
		int64(cfg.Render.MaxFetchMB)<<20,
		asset.NewByteCache(cfg.Render.FetchCacheMB),
	)
	store, err := storage.New(cfg.Storage.Dir, storage.Options{
		PublicURL: cfg.Server.PublicURL,
		Limits:    storage.LimitsMB(cfg.Storage.MaxBackgroundMB, cfg.Storage.MaxLogoMB),
		Remote:    remote,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	loader := asset.NewLoader(asset.NewRegistry(), store, logger)
	return &engine{
		catalog: cat,
		fonts:   fonts,
		store:   store,
		loader:  loader,
		pool:    compose.NewPool(loader, fonts, cfg.Server.Workers, logger),
	}, nil
}

func (e *engine) Close() {
	e.pool.Close()
}

// runServe starts the HTTP API and blocks until ctx is canceled.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	recs, err := records.Open(ctx, records.Config{
		SQLitePath: cfg.Database.SQLitePath,
		TursoURL:   cfg.Database.TursoURL,
		TursoToken: cfg.Database.TursoToken,
	}, logger)
	if err != nil {
		return err
	}
	defer recs.Close()

	var frames *cache.Store
	if cfg.Cache.Enabled {
		frames, err = cache.Open(cache.Config{
			Dir:       cfg.Cache.Dir,
			MaxSizeMB: cfg.Cache.MaxSizeMB,
			TTL:       cfg.Cache.TTL.Or(24*time.Hour),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer frames.Close()
	}

	logger.Info("starting server",
		"version", version,
		"addr", cfg.Server.Addr,
		"database", recs.Backend(),
		"media", cfg.Storage.Dir,
		"workers", cfg.Server.Workers)

	srv := server.New(server.Options{
		Catalog:          eng.catalog,
		Pool:             eng.pool,
		Loader:           eng.loader,
		Fonts:            eng.fonts,
		Storage:          eng.store,
		Records:          recs,
		Frames:           frames,
		Logger:           logger,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		JPEGQuality:      cfg.Render.JPEGQuality,
		PreviewMaxWidth:  cfg.Render.PreviewMaxWidth,
		PreviewMaxHeight: cfg.Render.PreviewMaxHeight,
	})
	return srv.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout.Or(10*time.Second))
}

// runRequest renders the request file once, then writes it to outPath
// and/or prints it in the terminal.
func runRequest(ctx context.Context, cfg *config.Config, logger *slog.Logger, path, outPath string, show bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	var rr server.RenderRequest
	if err := json.Unmarshal(data, &rr); err != nil {
		return fmt.Errorf("parse request %s: %w", path, err)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	up, err := localUploads(&rr, eng.store.Limits())
	if err != nil {
		return err
	}
	req, err := rr.Build(eng.catalog, up)
	if err != nil {
		return err
	}
	frame, err := eng.pool.Render(ctx, req)
	if err != nil {
		return err
	}
	logger.Debug("rendered", "template", req.Template.Key, "generation", frame.Result.Generation,
		"logos", len(frame.Result.Geometry.Logos))

	if outPath != "" {
		quality := rr.Quality
		if quality == 0 {
			quality = cfg.Render.JPEGQuality
		}
		var buf bytes.Buffer
		if err := compose.EncodeJPEG(&buf, frame.Image, quality); err != nil {
			return err
		}
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		logger.Info("wrote banner", "path", outPath, "bytes", buf.Len())
	}

	if show {
		size := preview.TerminalSize()
		cols, rows := cfg.Preview.Cols, cfg.Preview.Rows
		if cols <= 0 {
			cols = size.Cols
		}
		if rows <= 0 {
			rows = max(size.Rows-2, 1)
		}
		r := preview.NewRenderer(preview.Select(cfg.Preview.Protocol))
		out, err := r.Render(frame.Image, cols, rows)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return nil
}

// localUploads turns image references that name local files into blobs,
// so request files can point at images on disk. URLs are left alone.
func localUploads(rr *server.RenderRequest, limits storage.Limits) (server.Uploads, error) {
	var up server.Uploads
	var err error
	if up.Background, err = localBlob(&rr.BackgroundURL, storage.KindBackground, limits); err != nil {
		return up, err
	}
	if up.Logo, err = localBlob(&rr.LogoURL, storage.KindLogo, limits); err != nil {
		return up, err
	}

	var remote []string
	for _, ref := range rr.LogoURLs {
		b, err := localBlob(&ref, storage.KindLogo, limits)
		if err != nil {
			return up, err
		}
		if b != nil {
			up.Logos = append(up.Logos, b)
		} else {
			remote = append(remote, ref)
		}
	}
	if len(up.Logos) > 0 && len(remote) > 0 {
		return up, fmt.Errorf("logoUrls mixes local files and URLs")
	}
	return up, nil
}

func localBlob(ref *string, k storage.Kind, limits storage.Limits) (*asset.Blob, error) {
	if *ref == "" {
		return nil, nil
	}
	if u, err := url.Parse(*ref); err == nil && u.Scheme != "" && u.Scheme != "file" {
		return nil, nil
	}
	path := strings.TrimPrefix(*ref, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	b := asset.NewBlob(path, "", data)
	if _, err := storage.ValidateUpload(k, b, limits); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	*ref = ""
	return b, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Padding(0, 1)
)

// runListTemplates prints the catalog as a table.
func runListTemplates(w io.Writer, cfg *config.Config) error {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		Headers("KEY", "NAME", "SIZE", "LOGO", "TEXT SLOTS").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 3:
				return dimStyle
			default:
				return cellStyle
			}
		})

	for _, tpl := range cat.Templates() {
		logo := "-"
		switch {
		case tpl.MultiLogo != nil:
			logo = "multi"
		case tpl.Logo != nil:
			logo = "single"
		}
		slots := make([]string, len(tpl.Slots))
		for i, s := range tpl.Slots {
			slots[i] = s.ID
		}
		t.Row(tpl.Key, tpl.Name, strconv.Itoa(tpl.Width)+"x"+strconv.Itoa(tpl.Height), logo, strings.Join(slots, ", "))
	}
	_, err = fmt.Fprintln(w, t.Render())
	return err
}
