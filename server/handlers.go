package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jrsteele09/peek-plugin-user/api"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/rs/zerolog/log"
)

const maxActionBodyBytes = 64 << 10

// ActionHandler decodes a pushed action tuple and hands it to the controller.
func (s *Server) ActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "failed to read request body")
			return
		}

		action, err := tuples.Decode(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
			return
		}

		var response tuples.Tuple
		switch a := action.(type) {
		case *tuples.UserLoginAction:
			response, err = s.controller.Login(r.Context(), a)
		case *tuples.UserLogoutAction:
			response, err = s.controller.Logout(r.Context(), a)
		default:
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "no processor for "+string(action.TupleType()))
			return
		}
		if err != nil {
			writeControllerError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, api.ActionResponse{Tuples: tuples.List{response}})
	}
}

// SessionHandler reports whether the bearer user token still matches a login.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing or malformed Authorization header")
			return
		}

		session, err := s.controller.VerifySession(r.Context(), token)
		if err != nil {
			writeControllerError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, api.SessionResponse{
			UserName:    session.UserName,
			DeviceToken: session.DeviceToken,
			VehicleID:   session.VehicleID,
			ExpiresAt:   session.ExpiresAt,
			Active:      session.Active,
		})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// errorStatus maps controller and repository errors onto an HTTP status and code.
func errorStatus(err error) (int, api.ErrorCode) {
	switch {
	case errors.Is(err, autherrors.ErrUserNotLoggedIn):
		return http.StatusConflict, api.CodeNotLoggedIn
	case errors.Is(err, autherrors.ErrInvalidRequest),
		errors.Is(err, autherrors.ErrUnknownTupleType):
		return http.StatusBadRequest, api.CodeInvalidRequest
	case errors.Is(err, autherrors.ErrInvalidToken),
		errors.Is(err, autherrors.ErrTokenExpired),
		errors.Is(err, autherrors.ErrUnauthorized):
		return http.StatusUnauthorized, api.CodeUnauthorized
	case errors.Is(err, autherrors.ErrUserNotFound),
		errors.Is(err, autherrors.ErrNotFound):
		return http.StatusNotFound, api.CodeNotFound
	case errors.Is(err, autherrors.ErrRateLimited):
		return http.StatusTooManyRequests, api.CodeRateLimited
	default:
		return http.StatusInternalServerError, api.CodeInternal
	}
}

func writeControllerError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = "internal error"
	}
	writeError(w, status, code, message)
}

func writeError(w http.ResponseWriter, status int, code api.ErrorCode, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}
