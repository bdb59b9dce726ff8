package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/peek-plugin-user/api"
	"github.com/jrsteele09/peek-plugin-user/devices"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/internal/utils"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/users"
	"github.com/rs/zerolog/log"
)

func userResponse(u *users.User) api.UserResponse {
	resp := api.UserResponse{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		GroupNames:  u.GroupNames,
		Blocked:     u.Blocked,
		DateJoined:  u.DateJoined,
	}
	if resp.GroupNames == nil {
		resp.GroupNames = []string{}
	}
	if !u.LastLogin.IsZero() {
		resp.LastLogin = utils.Ptr(u.LastLogin)
	}
	return resp
}

// AdminUsersListHandler lists all users
func (s *Server) AdminUsersListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := s.repos.Users.List(r.Context())
		if err != nil {
			writeControllerError(w, r, err)
			return
		}
		out := make([]api.UserResponse, 0, len(all))
		for _, u := range all {
			out = append(out, userResponse(u))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AdminUpsertUserHandler creates a user or updates the supplied fields of an existing one
func (s *Server) AdminUpsertUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateUserRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "invalid JSON body")
			return
		}
		req.UserName = strings.TrimSpace(req.UserName)
		if req.UserName == "" {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "userName is required")
			return
		}

		ctx := r.Context()
		user, err := s.repos.Users.GetByUserName(ctx, req.UserName)
		created := false
		switch {
		case errors.Is(err, autherrors.ErrUserNotFound):
			user = &users.User{UserName: req.UserName, DateJoined: s.now()}
			created = true
		case err != nil:
			writeControllerError(w, r, err)
			return
		}

		if req.DisplayName != nil {
			user.DisplayName = utils.Value(req.DisplayName)
		}
		if req.Email != nil {
			user.Email = utils.Value(req.Email)
		}
		if req.GroupNames != nil {
			user.GroupNames = utils.Value(req.GroupNames)
		}
		if req.Password != nil {
			if err := users.ValidatePasswordStrength(utils.Value(req.Password)); err != nil {
				writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
				return
			}
			hash, err := users.HashPassword(utils.Value(req.Password))
			if err != nil {
				writeControllerError(w, r, err)
				return
			}
			user.PasswordHash = hash
		}
		wasBlocked := user.Blocked
		if req.Blocked != nil {
			user.Blocked = utils.Value(req.Blocked)
		}

		if err := s.repos.Users.Upsert(ctx, user); err != nil {
			writeControllerError(w, r, err)
			return
		}

		// Blocking a user ends their logins
		if user.Blocked && !wasBlocked {
			if _, err := s.controller.ForceLogout(ctx, user.UserName); err != nil {
				log.Err(err).Str("user", user.UserName).Msg("failed to log out blocked user")
			}
		}
		s.notifyUserList(r)

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, userResponse(user))
	}
}

// AdminDeleteUserHandler removes a user and ends their logins
func (s *Server) AdminDeleteUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userName := r.PathValue("userName")
		ctx := r.Context()

		if _, err := s.controller.ForceLogout(ctx, userName); err != nil {
			writeControllerError(w, r, err)
			return
		}
		if err := s.repos.Users.Delete(ctx, userName); err != nil {
			writeControllerError(w, r, err)
			return
		}
		s.notifyUserList(r)
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminLogoutUserHandler ends every login of a user, their devices are told to log out
func (s *Server) AdminLogoutUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := s.controller.ForceLogout(r.Context(), r.PathValue("userName"))
		if err != nil {
			writeControllerError(w, r, err)
			return
		}
		out := make([]api.LoginResponse, 0, len(removed))
		for _, rec := range removed {
			out = append(out, api.LoginResponse{
				UserName:    rec.UserName,
				DeviceToken: rec.DeviceToken,
				VehicleID:   rec.VehicleID,
				LoggedInAt:  rec.LoggedInAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AdminLoginsListHandler lists the active logins
func (s *Server) AdminLoginsListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := s.repos.Logins.List(r.Context())
		if err != nil {
			writeControllerError(w, r, err)
			return
		}
		out := make([]api.LoginResponse, 0, len(records))
		for _, rec := range records {
			out = append(out, api.LoginResponse{
				UserName:    rec.UserName,
				DeviceToken: rec.DeviceToken,
				VehicleID:   rec.VehicleID,
				LoggedInAt:  rec.LoggedInAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AdminEnrolDeviceHandler enrols a device or renames an enrolled one
func (s *Server) AdminEnrolDeviceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.EnrolDeviceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActionBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Token) == "" {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "token is required")
			return
		}

		device := &devices.Device{Token: req.Token, Description: req.Description, EnrolledAt: s.now()}
		if err := s.repos.Devices.Enrol(r.Context(), device); err != nil {
			writeControllerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) notifyUserList(r *http.Request) {
	if err := s.observable.NotifyOfTupleUpdate(r.Context(), tuples.UserListSelector()); err != nil {
		log.Err(err).Msg("failed to notify user list update")
	}
}
