package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/momentkeeper/internal/api"
	"github.com/dmitrijs2005/momentkeeper/internal/server/models"
)

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	u, token, err := s.users.Register(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.RegisterResponse{UserID: u.ID, Token: token, Tier: u.Tier})
}

func (s *HTTPServer) createMoment(w http.ResponseWriter, r *http.Request, u *models.User) {
	var req api.CreateMomentRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, created, err := s.moments.Create(r.Context(), u, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, m.ToAPI())
}

func (s *HTTPServer) getMoment(w http.ResponseWriter, r *http.Request, u *models.User) {
	m, err := s.moments.Get(r.Context(), u, mux.Vars(r)["id"])
	s.respondMoment(w, r, m, err)
}

func (s *HTTPServer) getMomentByClientID(w http.ResponseWriter, r *http.Request, u *models.User) {
	m, err := s.moments.GetByClientID(r.Context(), u, mux.Vars(r)["clientId"])
	s.respondMoment(w, r, m, err)
}

func (s *HTTPServer) updateMoment(w http.ResponseWriter, r *http.Request, u *models.User) {
	var req api.UpdateMomentRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.moments.Update(r.Context(), u, mux.Vars(r)["id"], req)
	s.respondMoment(w, r, m, err)
}

func (s *HTTPServer) archiveMoment(w http.ResponseWriter, r *http.Request, u *models.User) {
	m, err := s.moments.Archive(r.Context(), u, mux.Vars(r)["id"])
	s.respondMoment(w, r, m, err)
}

func (s *HTTPServer) restoreMoment(w http.ResponseWriter, r *http.Request, u *models.User) {
	m, err := s.moments.Restore(r.Context(), u, mux.Vars(r)["id"])
	s.respondMoment(w, r, m, err)
}

func (s *HTTPServer) enrichMoment(w http.ResponseWriter, r *http.Request, u *models.User) {
	m, err := s.moments.Enrich(r.Context(), u, mux.Vars(r)["id"])
	s.respondMoment(w, r, m, err)
}

func (s *HTTPServer) respondMoment(w http.ResponseWriter, r *http.Request, m *models.Moment, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m.ToAPI())
}

func (s *HTTPServer) listMoments(w http.ResponseWriter, r *http.Request, u *models.User) {
	cursor, limit, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.moments.List(r.Context(), u, cursor, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) timeline(w http.ResponseWriter, r *http.Request, u *models.User) {
	cursor, limit, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.moments.Timeline(r.Context(), u, cursor, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) purgeMoments(w http.ResponseWriter, r *http.Request, u *models.User) {
	resp, err := s.moments.Purge(r.Context(), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
