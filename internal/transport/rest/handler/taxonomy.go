package handler

import (
	"encoding/json"
	"net/http"
	"reviewlens/internal/loader"
	"reviewlens/internal/model"
	"reviewlens/internal/service"
	"strings"

	"github.com/gorilla/mux"
)

const maxUploadBytes = 32 << 20

// TaxonomyHandler serves categories, factor taxonomies and review imports
type TaxonomyHandler struct {
	taxonomySvc *service.TaxonomyService
	corpusSvc   *service.CorpusService
}

// NewTaxonomyHandler creates a new taxonomy handler
func NewTaxonomyHandler(taxonomySvc *service.TaxonomyService, corpusSvc *service.CorpusService) *TaxonomyHandler {
	return &TaxonomyHandler{taxonomySvc: taxonomySvc, corpusSvc: corpusSvc}
}

// Categories handles GET /v1/categories
func (h *TaxonomyHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.taxonomySvc.Categories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if cats == nil {
		cats = []model.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

// Factors handles GET /v1/categories/{category}/factors
func (h *TaxonomyHandler) Factors(w http.ResponseWriter, r *http.Request) {
	t, err := h.taxonomySvc.Get(r.Context(), mux.Vars(r)["category"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	factors := t.Factors
	if factors == nil {
		factors = []model.Factor{}
	}
	writeJSON(w, http.StatusOK, factors)
}

// Questions handles GET /v1/categories/{category}/questions
func (h *TaxonomyHandler) Questions(w http.ResponseWriter, r *http.Request) {
	t, err := h.taxonomySvc.Get(r.Context(), mux.Vars(r)["category"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	questions := t.Questions
	if questions == nil {
		questions = []model.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

// Replace handles PUT /v1/categories/{category}/taxonomy. The body is a
// taxonomy document in JSON, or YAML when the content type says so.
func (h *TaxonomyHandler) Replace(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var t *model.Taxonomy
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		parsed, err := loader.ReadTaxonomyYAML(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		t = parsed
	} else {
		t = &model.Taxonomy{}
		if err := json.NewDecoder(body).Decode(t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	t.Category = category
	loader.Clean(t)

	if err := h.taxonomySvc.Replace(r.Context(), t); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":  category,
		"factors":   len(t.Factors),
		"questions": len(t.Questions),
	})
}

// ImportReviews handles POST /v1/categories/{category}/reviews. The body is
// a CSV table when the content type is text/csv, JSON otherwise.
func (h *TaxonomyHandler) ImportReviews(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		reviews []model.Review
		err     error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "csv") {
		reviews, err = loader.ReadReviewsCSV(body)
	} else {
		reviews, err = loader.ReadReviewsJSON(body)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.corpusSvc.Import(r.Context(), category, reviews)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
