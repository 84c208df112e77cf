package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-metrature/internal/obs"
)

// HTTPRecorder records a configuration change after the handler ran.
type HTTPRecorder struct {
	Service Service
	OnError func(error)
}

// Middleware records action for the item named by the itemID route parameter.
func (r HTTPRecorder) Middleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			recorder := obs.NewStatusRecorder(w)
			next.ServeHTTP(recorder, req)

			meta := map[string]any{"bytes": recorder.BytesWritten()}
			if recorder.Status() >= http.StatusBadRequest {
				meta["rejected"] = true
			}
			err := r.Service.Record(req.Context(), req, action, chi.URLParam(req, "itemID"), recorder.Status(), meta)
			if err != nil && r.OnError != nil {
				r.OnError(err)
			}
		})
	}
}
