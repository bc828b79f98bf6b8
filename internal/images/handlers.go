package images

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/listing"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/utils"
)

const FormField = "images"

var keyRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(jpg|png|webp|gif)$`)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func int64Param(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &listing.ValidationError{Field: name, Msg: "must be a positive integer"}
	}
	return id, nil
}

func firmID(r *http.Request) string {
	p, _ := utils.GetPrincipalFromContext(r.Context())
	return p.FirmID
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	listingID, err := int64Param(r, "id")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	lim := h.svc.limits
	r.Body = http.MaxBytesReader(w, r.Body, int64(max(lim.MaxFiles, 1))*lim.MaxFileBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.Fail(w, r, &listing.ValidationError{Field: FormField, Msg: "invalid multipart upload: " + err.Error()})
		return
	}
	defer r.MultipartForm.RemoveAll()

	imgs, err := h.svc.Upload(r.Context(), firmID(r), listingID, r.MultipartForm.File[FormField])
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("images uploaded", "listing_id", listingID, "count", len(imgs))
	httputil.WriteJSON(w, http.StatusCreated, imgs)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	listingID, err := int64Param(r, "id")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	imgs, err := h.svc.List(r.Context(), firmID(r), listingID)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, imgs)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	listingID, err := int64Param(r, "id")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	imageID, err := int64Param(r, "imgId")
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	img, err := h.svc.Delete(r.Context(), firmID(r), listingID, imageID)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, img)
}

// Media streams a stored object. Keys are unguessable, so no auth.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !keyRe.MatchString(key) {
		httputil.WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	rc, info, err := h.svc.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		httputil.Fail(w, r, err)
		return
	}
	defer rc.Close()

	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		logging.FromContext(r.Context()).Debug("media stream interrupted", "key", key, logging.Err(err))
	}
}
