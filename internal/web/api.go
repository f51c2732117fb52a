package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/haasonsaas/canvasd/internal/canvas"
)

// ExportFilename is the download name of the PDF export.
const ExportFilename = "canvas-export.pdf"

// multipartMemory is how much of an upload is held in memory before the
// multipart reader spills to disk.
const multipartMemory = 8 << 20

// CanvasResponse wraps the document in every mutation response.
type CanvasResponse struct {
	Canvas canvas.Document `json:"canvas"`
}

// apiState handles GET /api/canvas.
func (h *Handler) apiState(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, CanvasResponse{Canvas: h.config.Manager.State()})
}

// apiInit handles POST /api/canvas/init.
func (h *Handler) apiInit(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRequest(r, "init")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	doc, err := h.config.Manager.Init(r.Context(), body.Int("width", 0), body.Int("height", 0))
	h.respond(w, r, doc, err)
}

// apiAddRectangle handles POST /api/canvas/add/rectangle.
func (h *Handler) apiAddRectangle(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRequest(r, "rectangle")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	el := canvas.Rectangle(body.Int("x", 0), body.Int("y", 0), body.Int("width", 0), body.Int("height", 0), body.String("color"))
	doc, err := h.config.Manager.Add(r.Context(), el)
	h.respond(w, r, doc, err)
}

// apiAddCircle handles POST /api/canvas/add/circle.
func (h *Handler) apiAddCircle(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRequest(r, "circle")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	el := canvas.Circle(body.Int("x", 0), body.Int("y", 0), body.Int("radius", 0), body.String("color"))
	doc, err := h.config.Manager.Add(r.Context(), el)
	h.respond(w, r, doc, err)
}

// apiAddText handles POST /api/canvas/add/text.
func (h *Handler) apiAddText(w http.ResponseWriter, r *http.Request) {
	body, err := decodeRequest(r, "text")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	el := canvas.Text(body.Int("x", 0), body.Int("y", 0), body.String("text"), body.String("font"), body.Int("size", 0), body.String("color"))
	doc, err := h.config.Manager.Add(r.Context(), el)
	h.respond(w, r, doc, err)
}

// apiAddImageURL handles POST /api/canvas/add/image-url.
func (h *Handler) apiAddImageURL(w http.ResponseWriter, r *http.Request) {
	if h.config.Fetcher == nil {
		h.jsonError(w, "image fetching is not configured", http.StatusNotImplemented)
		return
	}
	body, err := decodeRequest(r, "image-url")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.requireInitialized(); err != nil {
		h.writeError(w, r, err)
		return
	}
	rawURL := strings.TrimSpace(body.String("url"))
	res, err := h.config.Fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	el := canvas.Image(body.Int("x", 0), body.Int("y", 0), body.Int("width", res.Width), body.Int("height", res.Height), res.Path, rawURL)
	doc, err := h.config.Manager.Add(r.Context(), el)
	h.respond(w, r, doc, err)
}

// apiAddImageUpload handles POST /api/canvas/add/image-upload.
func (h *Handler) apiAddImageUpload(w http.ResponseWriter, r *http.Request) {
	if h.config.Uploader == nil {
		h.jsonError(w, "uploads are not configured", http.StatusNotImplemented)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.config.Uploader.MaxBytes()+maxBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, fmt.Errorf("%w: upload exceeds %d bytes", canvas.ErrInvalidImageFile, h.config.Uploader.MaxBytes()))
			return
		}
		h.writeError(w, r, fmt.Errorf("%w: expected a multipart form with an image file", canvas.ErrInvalidInput))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	body, err := decodeRequest(r, "image-upload")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: no file uploaded", canvas.ErrInvalidInput))
		return
	}
	defer file.Close()
	if err := h.requireInitialized(); err != nil {
		h.writeError(w, r, err)
		return
	}

	staged, err := h.config.Uploader.Save(body.String("name"), header.Filename, file)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.config.Uploader.Accept(r.Context(), staged)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	el := canvas.Image(body.Int("x", 0), body.Int("y", 0), body.Int("width", res.Width), body.Int("height", res.Height), res.Path, "")
	doc, err := h.config.Manager.Add(r.Context(), el)
	h.respond(w, r, doc, err)
}

// apiClear handles POST /api/canvas/clear.
func (h *Handler) apiClear(w http.ResponseWriter, r *http.Request) {
	doc, err := h.config.Manager.Clear(r.Context())
	h.respond(w, r, doc, err)
}

// apiPreview handles GET /api/canvas/preview.
func (h *Handler) apiPreview(w http.ResponseWriter, r *http.Request) {
	data, err := h.config.Artifacts.Preview(r.Context())
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			h.jsonError(w, "preview not found", http.StatusNotFound)
			return
		}
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// apiExport handles GET /api/canvas/export. The export is removed once
// served, so a second download needs another render.
func (h *Handler) apiExport(w http.ResponseWriter, r *http.Request) {
	data, err := h.config.Artifacts.TakeExport(r.Context())
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			h.jsonError(w, "PDF not generated yet", http.StatusNotFound)
			return
		}
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFilename))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		h.config.Logger.WarnContext(r.Context(), "export download interrupted", "error", err)
	}
}

// requireInitialized rejects image adds before any init, so nothing is
// fetched or stored for a request that cannot succeed.
func (h *Handler) requireInitialized() error {
	if !h.config.Manager.State().Initialized() {
		return canvas.ErrNotInitialized
	}
	return nil
}

// respond writes the document, or the error of a failed mutation.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, doc canvas.Document, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.jsonResponse(w, CanvasResponse{Canvas: doc})
}

// writeError maps err to a status code. Caller mistakes are echoed back;
// anything else is logged and reported generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.config.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	h.jsonError(w, message, status)
}

func errorStatus(err error) (int, string) {
	switch {
	case canvas.IsClientError(err):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), "canvas: ")
	case errors.Is(err, canvas.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, canvas.ErrNotInitialized):
		return http.StatusConflict, "canvas not initialized"
	case errors.Is(err, canvas.ErrFetch):
		return http.StatusInternalServerError, "failed to fetch image"
	case errors.Is(err, canvas.ErrRenderFailed):
		return http.StatusInternalServerError, "failed to render canvas"
	case errors.Is(err, context.Canceled):
		return 499, "request canceled"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// jsonResponse writes a JSON response.
func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
