package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/quizpack/internal/doctree"
	"github.com/dgallion1/quizpack/internal/renumber"
	"github.com/dgallion1/quizpack/internal/store"
)

type numberingRequest struct {
	Mode doctree.NumberingMode `json:"mode"`
}

type tourRequest struct {
	Type     doctree.TourType `json:"type"`
	Preamble string           `json:"preamble"`
}

type moveRequest struct {
	Index *int `json:"index"`
}

type questionRequest struct {
	Text    string  `json:"text"`
	Answer  string  `json:"answer"`
	BlockID *string `json:"block_id"`
}

type questionMoveRequest struct {
	TourID  string  `json:"tour_id"`
	BlockID *string `json:"block_id"`
	Index   *int    `json:"index"`
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := store.LoadPackage(r.Context(), s.db, chi.URLParam(r, "packageID"))
	s.writePackage(w, pkg, err)
}

func (s *Server) handleRenumber(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.packages.Renumber(r.Context(), chi.URLParam(r, "packageID"))
	s.writePackage(w, pkg, err)
}

func (s *Server) handleSetNumbering(w http.ResponseWriter, r *http.Request) {
	var req numberingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pkg, err := s.packages.SetNumberingMode(r.Context(), chi.URLParam(r, "packageID"), req.Mode)
	s.writePackage(w, pkg, err)
}

func (s *Server) handleAddTour(w http.ResponseWriter, r *http.Request) {
	var req tourRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = doctree.TourRegular
	}
	tour, err := s.packages.AddTour(r.Context(), chi.URLParam(r, "packageID"), req.Type, req.Preamble)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tour)
}

func (s *Server) handleSetTourType(w http.ResponseWriter, r *http.Request) {
	var req tourRequest
	if !decodeBody(w, r, &req) {
		return
	}
	pkg, err := s.packages.SetTourType(r.Context(), chi.URLParam(r, "tourID"), req.Type)
	s.writePackage(w, pkg, err)
}

func (s *Server) handleMoveTour(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeMove(w, r, &req) {
		return
	}
	pkg, err := s.packages.MoveTour(r.Context(), chi.URLParam(r, "tourID"), *req.Index)
	s.writePackage(w, pkg, err)
}

func (s *Server) handleDeleteTour(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.packages.DeleteTour(r.Context(), chi.URLParam(r, "tourID"))
	s.writePackage(w, pkg, err)
}

func (s *Server) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeMove(w, r, &req) {
		return
	}
	pkg, err := s.packages.MoveBlock(r.Context(), chi.URLParam(r, "blockID"), *req.Index)
	s.writePackage(w, pkg, err)
}

func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.packages.DeleteBlock(r.Context(), chi.URLParam(r, "blockID"))
	s.writePackage(w, pkg, err)
}

func (s *Server) handleAddQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	q, err := s.packages.AddQuestion(r.Context(), chi.URLParam(r, "tourID"), renumber.NewQuestion{
		BlockID: req.BlockID,
		Text:    req.Text,
		Answer:  req.Answer,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleMoveQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionMoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TourID == "" || req.Index == nil {
		jsonError(w, "tour_id and index are required", http.StatusBadRequest)
		return
	}
	pkg, err := s.packages.MoveQuestion(r.Context(), chi.URLParam(r, "questionID"), renumber.QuestionTarget{
		TourID:  req.TourID,
		BlockID: req.BlockID,
		Index:   *req.Index,
	})
	s.writePackage(w, pkg, err)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.packages.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID"))
	s.writePackage(w, pkg, err)
}

func (s *Server) writePackage(w http.ResponseWriter, pkg *store.Package, err error) {
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

// serviceError maps domain errors onto status codes.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, renumber.ErrInvalid):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("package edit failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func decodeMove(w http.ResponseWriter, r *http.Request, req *moveRequest) bool {
	if !decodeBody(w, r, req) {
		return false
	}
	if req.Index == nil {
		jsonError(w, "index is required", http.StatusBadRequest)
		return false
	}
	return true
}
