package api

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/labelservice"
	"github.com/starford/ocrlabel/internal/labeltext"
	"github.com/starford/ocrlabel/internal/models"
)

// retryAfterSeconds is sent when every remaining image is inside its window.
const retryAfterSeconds = 5

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Handler holds the page and API route handlers.
type Handler struct {
	svc *labelservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *labelservice.Service) *Handler {
	return &Handler{svc: svc}
}

func render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("render failed", slog.String("template", name), slog.String("error", err.Error()))
	}
}

// Index handles GET / and GET /index: the labeling page for the next image.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Current(r.Context())
	switch {
	case errors.Is(err, apperr.ErrNoMoreImages):
		render(w, http.StatusOK, "no_more_images.html", nil)
		return
	case errors.Is(err, apperr.ErrTemporarilyExhausted):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		render(w, http.StatusOK, "retry.html", retryAfterSeconds)
		return
	case err != nil:
		slog.Error("current image failed", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, http.StatusOK, "index.html", indexPage{
		View:    view,
		Photo:   url.PathEscape(view.Image.Filename),
		IsPlate: view.UseCase == models.UseCasePlate,
	})
}

// Action handles the labeling form. Whatever the outcome, the browser is
// sent back to the labeling page; rejected input is only logged.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	defer http.Redirect(w, r, "/", http.StatusSeeOther)
	if r.Method != http.MethodPost {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		slog.Warn("action: bad form", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	form := r.PostForm
	action := form.Get("action")

	var err error
	switch action {
	case "Save":
		// A missing or malformed index is left as 0 and rejected by Save.
		index, _ := strconv.Atoi(form.Get("index"))
		_, err = h.svc.Save(ctx, labelservice.SaveRequest{
			Index: index,
			Fields: labeltext.Fields{
				Text01: form.Get("text_01"),
				Text02: form.Get("text_02"),
				Text03: form.Get("text_03"),
			},
		})
	case "Skip":
		err = h.svc.Skip(ctx)
	case "Jump":
		err = h.svc.Jump(ctx, form.Get("jump_index"))
	case "Set":
		err = h.svc.Configure(ctx, settingsFromForm(form))
	default:
		return
	}
	if err != nil {
		slog.Warn("action rejected", slog.String("action", action), slog.String("error", err.Error()))
	}
}

// settingsFromForm keeps the distinction between an absent and an empty
// length field.
func settingsFromForm(form url.Values) labelservice.Settings {
	var s labelservice.Settings
	if form.Has("text_min_len") {
		v := form.Get("text_min_len")
		s.MinLength = &v
	}
	if form.Has("text_max_len") {
		v := form.Get("text_max_len")
		s.MaxLength = &v
	}
	s.Plate = form.Get("plate-usual") == "on"
	return s
}

// Image handles GET /images/{name}: serves a dataset image.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	path, err := h.svc.ImagePath(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// Status handles GET /api/cursor.
//
//	@Summary		Cursor progress
//	@Tags			cursor
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/cursor [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Status(r.Context())
	if err != nil {
		slog.Error("status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Next handles GET /api/next.
//
//	@Summary		Next image to label
//	@Tags			cursor
//	@Produce		json
//	@Success		200	{object}	NextResponse
//	@Failure		404	{object}	errResponse	"no more images"
//	@Failure		503	{object}	errResponse	"all remaining images in use"
//	@Router			/next [get]
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Current(r.Context())
	if err != nil {
		writeServiceError(w, "next", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Save handles POST /api/save.
//
//	@Summary		Label the image shown at the given index
//	@Tags			labels
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	true	"Label fields"
//	@Success		201		{object}	models.Label
//	@Failure		400		{object}	errResponse	"unknown index or invalid label"
//	@Router			/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	label, err := h.svc.Save(r.Context(), req)
	if err != nil {
		writeServiceError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusCreated, label)
}

// Skip handles POST /api/skip.
//
//	@Summary		Skip the image at the cursor
//	@Tags			cursor
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/skip [post]
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Skip(r.Context()); err != nil {
		writeServiceError(w, "skip", err)
		return
	}
	h.Status(w, r)
}

// Jump handles POST /api/jump.
//
//	@Summary		Move the cursor to an index
//	@Tags			cursor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		JumpRequest	true	"Target index"
//	@Success		200		{object}	StatusResponse
//	@Failure		400		{object}	errResponse
//	@Router			/jump [post]
func (h *Handler) Jump(w http.ResponseWriter, r *http.Request) {
	var req JumpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Jump(r.Context(), req.Index.String()); err != nil {
		writeServiceError(w, "jump", err)
		return
	}
	h.Status(w, r)
}

// Settings handles PUT /api/settings.
//
//	@Summary		Update label lengths and layout
//	@Tags			cursor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsRequest	true	"Settings"
//	@Success		200		{object}	StatusResponse
//	@Failure		400		{object}	errResponse
//	@Router			/settings [put]
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Configure(r.Context(), req); err != nil {
		writeServiceError(w, "settings", err)
		return
	}
	h.Status(w, r)
}

// Labels handles GET /api/labels.
//
//	@Summary		List or search saved labels
//	@Tags			labels
//	@Produce		json
//	@Param			q		query		string	false	"Search query"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	LabelListResponse
//	@Router			/labels [get]
func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	labels, total, err := h.svc.Labels(r.Context(), q.Get("q"), limit, offset)
	if err != nil {
		slog.Error("list labels failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, LabelListResponse{Labels: labels, Total: total})
}
