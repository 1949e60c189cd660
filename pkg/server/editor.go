package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mrt-jh/smart-image-editor/pkg/compose"
	"github.com/mrt-jh/smart-image-editor/pkg/layout"
	"github.com/mrt-jh/smart-image-editor/pkg/resize"
)

// Editor message types. Clients send render and pointer messages; the
// server answers with draw notifications, frame headers followed by one
// binary JPEG message, logo height updates and errors.
const (
	msgRender      = "render"
	msgPointerDown = "pointerdown"
	msgPointerMove = "pointermove"
	msgPointerUp   = "pointerup"

	evDrawStart    = "drawStart"
	evDrawComplete = "drawComplete"
	evFrame        = "frame"
	evLogoHeight   = "logoHeight"
	evError        = "error"
)

const editorReadLimit = 1 << 20

// editorMessage is a client message. X and Y are preview coordinates.
type editorMessage struct {
	Type    string         `json:"type"`
	Request *RenderRequest `json:"request,omitempty"`
	X       float64        `json:"x"`
	Y       float64        `json:"y"`
}

// editorEvent is a server message.
type editorEvent struct {
	Type         string       `json:"type"`
	Generation   uint64       `json:"generation,omitempty"`
	Published    bool         `json:"published,omitempty"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
	PreviewScale float64      `json:"previewScale,omitempty"`
	Handle       *layout.Rect `json:"handle,omitempty"`
	LogoHeight   float64      `json:"logoHeight,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.opts.AllowedOrigins) == 0 {
				return true
			}
			return slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
		},
	}
}

// handleEditor upgrades to a websocket and runs one editor session on it.
// Each session owns a compositor, so its asset caches and generation
// counter belong to that editor alone.
func (s *Server) handleEditor(c *gin.Context) {
	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("server: editor upgrade failed", "error", err)
		return
	}
	sess := newEditorSession(s, conn)
	sess.run()
}

type editorSession struct {
	srv  *Server
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex

	comp   *compose.Compositor
	resize *resize.Controller

	mu       sync.Mutex
	req      compose.Request
	ready    bool
	frameGen uint64 // generation of the last frame sent
	geometry compose.Geometry
	scale    float64
}

func newEditorSession(s *Server, conn *websocket.Conn) *editorSession {
	ctx, cancel := context.WithCancel(context.Background())
	e := &editorSession{srv: s, conn: conn, ctx: ctx, cancel: cancel, scale: 1}
	e.comp = compose.New(s.opts.Loader, s.opts.Fonts, compose.WithLogger(s.log), compose.WithHooks(compose.Hooks{
		OnDrawStart: func(gen uint64) {
			e.send(editorEvent{Type: evDrawStart, Generation: gen})
		},
		OnDrawComplete: func(gen uint64, published bool) {
			e.send(editorEvent{Type: evDrawComplete, Generation: gen, Published: published})
		},
	}))
	e.resize = resize.NewController(e.setLogoHeight)
	return e
}

// run reads client messages until the connection closes, then releases
// the compositor once every render has returned.
func (e *editorSession) run() {
	defer func() {
		e.resize.Close()
		e.cancel()
		e.wg.Wait()
		e.comp.Close()
		_ = e.conn.Close()
	}()

	e.conn.SetReadLimit(editorReadLimit)
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.srv.log.Debug("server: editor read", "error", err)
			}
			return
		}
		var msg editorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			e.send(editorEvent{Type: evError, Error: "invalid message: " + err.Error()})
			continue
		}
		e.handle(msg)
	}
}

func (e *editorSession) handle(msg editorMessage) {
	switch msg.Type {
	case msgRender:
		if msg.Request == nil {
			e.send(editorEvent{Type: evError, Error: "render message without request"})
			return
		}
		req, err := msg.Request.Build(e.srv.opts.Catalog, Uploads{})
		if err != nil {
			e.send(editorEvent{Type: evError, Error: err.Error()})
			return
		}
		e.mu.Lock()
		e.req, e.ready = req, true
		e.mu.Unlock()
		e.render(req)

	case msgPointerDown:
		e.mu.Lock()
		handle, ok := e.geometry.Handle(e.scale)
		var current float64
		if ok {
			current = e.geometry.Logos[0].Height
		}
		e.mu.Unlock()
		if ok && handle.Contains(msg.X, msg.Y) {
			e.resize.Begin(msg.Y, current)
		}

	case msgPointerMove:
		e.resize.Move(msg.Y)

	case msgPointerUp:
		e.resize.End()

	default:
		e.send(editorEvent{Type: evError, Error: "unknown message type " + msg.Type})
	}
}

// setLogoHeight is the resize callback: it records the live height,
// reports it and renders again.
func (e *editorSession) setLogoHeight(h float64) {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return
	}
	e.req.LogoHeight = h
	req := e.req
	e.mu.Unlock()

	e.send(editorEvent{Type: evLogoHeight, LogoHeight: h})
	e.render(req)
}

// render composes req in the background. Superseded renders send nothing
// beyond their draw notifications.
func (e *editorSession) render(req compose.Request) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res, err := e.comp.Render(e.ctx, req)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, compose.ErrClosed) {
				e.send(editorEvent{Type: evError, Generation: res.Generation, Error: err.Error()})
			}
			return
		}
		if !res.Published {
			return
		}

		img, gen := e.comp.Visible().Capture()
		if gen != res.Generation {
			return
		}
		b := img.Bounds()
		scale := layout.PreviewScale(float64(b.Dx()), float64(b.Dy()), e.srv.opts.PreviewMaxWidth, e.srv.opts.PreviewMaxHeight)

		var buf bytes.Buffer
		if err := compose.EncodeJPEG(&buf, img, e.srv.opts.JPEGQuality); err != nil {
			e.send(editorEvent{Type: evError, Generation: gen, Error: err.Error()})
			return
		}
		ev := editorEvent{Type: evFrame, Generation: gen, Width: b.Dx(), Height: b.Dy(), PreviewScale: scale}
		if h, ok := res.Geometry.Handle(scale); ok {
			ev.Handle = &h
		}

		e.writeMu.Lock()
		defer e.writeMu.Unlock()
		if !e.publish(gen, res.Geometry, scale) {
			return
		}
		if err := e.conn.WriteJSON(ev); err != nil {
			return
		}
		_ = e.conn.WriteMessage(websocket.BinaryMessage, buf.Bytes())
	}()
}

// publish records the geometry of frame gen for hit-testing. It reports
// false, leaving the state alone, when a newer frame was already recorded.
// Callers hold writeMu so frames go out in generation order.
func (e *editorSession) publish(gen uint64, g compose.Geometry, scale float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen <= e.frameGen {
		return false
	}
	e.frameGen, e.geometry, e.scale = gen, g, scale
	return true
}

// send writes one event. Write errors surface as read errors in run.
func (e *editorSession) send(ev editorEvent) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = e.conn.WriteJSON(ev)
}
