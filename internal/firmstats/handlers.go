package firmstats

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/utils"
	"golang.org/x/sync/errgroup"
)

type Handler struct {
	store Store
	now   func() time.Time
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store, now: time.Now}
}

// firmFromPath returns {firmId} when it is the caller's own firm.
func firmFromPath(r *http.Request) (string, error) {
	p, _ := utils.GetPrincipalFromContext(r.Context())
	firmID := chi.URLParam(r, "firmId")
	if firmID == "" || firmID != p.FirmID {
		return "", httputil.ErrForbidden
	}
	return firmID, nil
}

func (h *Handler) MedianAskingPsqft(w http.ResponseWriter, r *http.Request) {
	h.median(w, r, Asking)
}

func (h *Handler) MedianSoldPsqft(w http.ResponseWriter, r *http.Request) {
	h.median(w, r, Sold)
}

func (h *Handler) median(w http.ResponseWriter, r *http.Request, kind PriceKind) {
	firmID, err := firmFromPath(r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	curr, prev := Windows(h.now(), PriceWindow)
	var currV, prevV *float64

	start := time.Now()
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		currV, err = h.store.MedianPricePerSqft(ctx, firmID, kind, curr)
		return err
	})
	g.Go(func() (err error) {
		prevV, err = h.store.MedianPricePerSqft(ctx, firmID, kind, prev)
		return err
	})
	if err := g.Wait(); err != nil {
		httputil.Fail(w, r, err)
		return
	}

	httputil.ServerTiming(w, httputil.Timing{Name: "db", Dur: time.Since(start)})
	httputil.WriteJSON(w, http.StatusOK, Compare(currV, prevV, PriceWindow))
}

func (h *Handler) PipelineCounts(w http.ResponseWriter, r *http.Request) {
	firmID, err := firmFromPath(r)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	curr, prev := Windows(h.now(), PipelineWindow)
	var currC, prevC map[string]int64

	start := time.Now()
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		currC, err = h.store.PipelineCounts(ctx, firmID, curr)
		return err
	})
	g.Go(func() (err error) {
		prevC, err = h.store.PipelineCounts(ctx, firmID, prev)
		return err
	})
	if err := g.Wait(); err != nil {
		httputil.Fail(w, r, err)
		return
	}

	httputil.ServerTiming(w, httputil.Timing{Name: "db", Dur: time.Since(start)})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"window_days": int(PipelineWindow / (24 * time.Hour)),
		"counts":      MergePipeline(currC, prevC),
	})
}
