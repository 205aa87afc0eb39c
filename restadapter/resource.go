// Package restadapter wraps updater.Updater's in-process calls as a
// thin HTTP resource: start/write/finalize/activate/rollback/status.
// Built on go-chi/chi and go-chi/render, the same router/renderer
// babyapi is itself built on. None of the six verbs is a GetID()-shaped
// CRUD resource, so babyapi's client is wired on the other side of this
// boundary instead, in cmd/flashctl, via its generic-request calls.
package restadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/opentrickler/trickler-core/core"
	"github.com/opentrickler/trickler-core/updater"
)

// Handler exposes updater.Updater over HTTP, plus a read-only view of
// the controller's structured error log. errs is nil-safe: an unwired
// log just reports empty.
type Handler struct {
	u    *updater.Updater
	errs *core.Log
}

func NewHandler(u *updater.Updater, errs *core.Log) *Handler { return &Handler{u: u, errs: errs} }

// Routes mounts the five verbs plus status and the error log onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/start", h.start)
	r.Post("/write", h.write)
	r.Post("/finalize", h.finalize)
	r.Post("/activate", h.activate)
	r.Post("/rollback", h.rollback)
	r.Get("/status", h.status)
	r.Get("/errors", h.errorLog)
}

type startRequest struct {
	Size    uint32 `json:"size"`
	Version string `json:"version"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.u.Start(req.Size, req.Version); err != nil {
		renderError(w, r, http.StatusConflict, err)
		return
	}
	renderOK(w, r)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	buf, err := io.ReadAll(r.Body)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.u.WriteChunk(buf); err != nil {
		renderError(w, r, http.StatusConflict, err)
		return
	}
	renderOK(w, r)
}

type finalizeRequest struct {
	CRC32 uint32 `json:"crc32"`
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.u.Finalize(req.CRC32); err != nil {
		if errors.Is(err, updater.ErrCRCMismatch) && h.errs != nil {
			h.errs.Record(core.KindChecksumMismatch, "firmware image CRC mismatch, target bank invalidated", time.Now().UnixMilli())
		}
		renderError(w, r, http.StatusConflict, err)
		return
	}
	renderOK(w, r)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	if err := h.u.ActivateAndReboot(); err != nil {
		renderError(w, r, http.StatusConflict, err)
		return
	}
	renderOK(w, r)
}

func (h *Handler) rollback(w http.ResponseWriter, r *http.Request) {
	if err := h.u.RollbackAndReboot(); err != nil {
		renderError(w, r, http.StatusConflict, err)
		return
	}
	renderOK(w, r)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.u.Status())
}

func (h *Handler) errorLog(w http.ResponseWriter, r *http.Request) {
	if h.errs == nil {
		render.JSON(w, r, []core.Entry{})
		return
	}
	render.JSON(w, r, h.errs.Recent())
}

func renderOK(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"result": "ok"})
}

func renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}
