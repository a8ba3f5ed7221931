package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match3-backend/internal/engine"
	"github.com/DoyleJ11/match3-backend/internal/hub"
	"github.com/DoyleJ11/match3-backend/internal/store"
	"github.com/DoyleJ11/match3-backend/internal/types"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch engine.KindOf(err) {
	case engine.KindValidation:
		return http.StatusBadRequest
	case engine.KindConflict:
		return http.StatusConflict
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Code: engine.CodeOf(err), Error: err.Error()})
}

func CreateSession(h *hub.Hub, v *validator.Validate, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSessionRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: engine.ErrInvalidInput.Code, Error: "bad json"})
			return
		}
		if err := v.Struct(req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Code: engine.ErrInvalidConfig.Code, Error: describe(err)})
			return
		}

		lb, err := h.Create(r.Context(), req.Config())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		view, err := lb.State(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, types.CreateSessionResponse{ID: lb.ID(), Config: view.Session.Config})
	}
}

type sessionResponse struct {
	Version int `json:"version"`
	Clients int `json:"clients"`
	engine.View
}

func GetSession(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, err := h.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		view, err := lb.State(r.Context())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{Version: view.Version, Clients: view.NumClients, View: view.Session})
	}
}

// DeleteSession is idempotent: deleting an unknown session is still 204.
func DeleteSession(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Ranking(st store.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := store.DefaultRankingLimit
		if q := r.URL.Query().Get("limit"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, errorBody{Code: engine.ErrInvalidInput.Code, Error: "limit must be a positive integer"})
				return
			}
			limit = n
		}

		rows, err := st.FetchHistoricalRanking(r.Context(), limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if rows == nil {
			rows = []store.RankingRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fe.Field() + " failed " + fe.Tag()
}
