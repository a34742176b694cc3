package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reviewlens/internal/model"
	"reviewlens/internal/service"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCategory = "appliance_heated_humidifier"

func ratingPtr(v int) *int { return &v }

type testServer struct {
	handler http.Handler
	auth    *service.AuthService
	factors *memFactors
	reviews *memReviews
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	factors := &memFactors{byCat: map[string][]model.Factor{
		testCategory: {
			{ID: 1, Key: "noise", DisplayName: "Noise", Category: testCategory, AnchorTerms: []string{"loud"}, ContextTerms: []string{"night"}, Weight: 1.0},
			{ID: 2, Key: "cleaning", DisplayName: "Cleaning hassle", Category: testCategory, AnchorTerms: []string{"clean"}, Weight: 1.2},
		},
	}}
	questions := &memQuestions{byCat: map[string][]model.Question{
		testCategory: {
			{ID: 101, FactorID: 1, FactorKey: "noise", Text: "Do you sleep in the same room?"},
			{ID: 201, FactorID: 2, FactorKey: "cleaning", Text: "How often would you clean it?"},
		},
	}}
	reviews := &memReviews{reviews: []model.Review{
		{ID: "r1", Category: testCategory, Rating: ratingPtr(1), Text: "Way too loud at night."},
		{ID: "r2", Category: testCategory, Rating: ratingPtr(2), Text: "Hard to clean."},
	}}

	auth := service.NewAuthService("rest-secret", "admin", "pw")
	taxonomy := service.NewTaxonomyService(factors, questions, nil, nil)
	corpus := service.NewCorpusService(reviews, 100, nil)
	reports := service.NewReportService(&memReports{bySession: map[string]*model.Report{}})
	chat := service.NewChatService(taxonomy, corpus, reports, auth, nil, nil, service.ChatOptions{}, nil)

	return &testServer{
		handler: NewRouter(&Container{
			AuthService:     auth,
			ChatService:     chat,
			TaxonomyService: taxonomy,
			CorpusService:   corpus,
			ReportService:   reports,
			CORSOrigins:     []string{"https://shop.example"},
		}),
		auth:    auth,
		factors: factors,
		reviews: reviews,
	}
}

func (s *testServer) do(t *testing.T, method, path, token, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v))
}

func (s *testServer) start(t *testing.T) service.StartResponse {
	t.Helper()
	rec := s.do(t, "POST", "/v1/sessions", "", "application/json", `{"category":"`+testCategory+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp service.StartResponse
	decode(t, rec, &resp)
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "GET", "/health", "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/v1/sessions/abc/messages", nil)
	req.Header.Set("Origin", "https://shop.example")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://shop.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSessionFlow(t *testing.T) {
	s := newTestServer(t)
	started := s.start(t)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, 2, started.FactorCount)
	assert.Equal(t, 2, started.ReviewCount)

	base := "/v1/sessions/" + started.SessionID
	tok := started.Token

	rec := s.do(t, "POST", base+"/messages", tok, "application/json", `{"message":"It is too loud at night"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var turn model.BotTurn
	decode(t, rec, &turn)
	assert.Equal(t, 1, turn.TurnCount)
	require.NotNil(t, turn.QuestionText)
	assert.Equal(t, "Do you sleep in the same room?", *turn.QuestionText)
	require.NotEmpty(t, turn.TopFactors)
	assert.Equal(t, "noise", turn.TopFactors[0].FactorKey)

	rec = s.do(t, "POST", base+"/messages", tok, "application/json", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", base+"/messages", tok, "application/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", base+"/related/noise?limit=3", tok, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var related model.RelatedReviews
	decode(t, rec, &related)
	assert.Equal(t, "noise", related.FactorKey)
	assert.Equal(t, 1, related.Count)

	rec = s.do(t, "GET", base+"/related/battery", tok, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "GET", base+"/related/noise?limit=x", tok, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "GET", "/v1/reports/"+started.SessionID, tok, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no report before finalize")

	rec = s.do(t, "POST", base+"/finalize", tok, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var final model.BotTurn
	decode(t, rec, &final)
	assert.True(t, final.IsFinal)
	require.NotNil(t, final.Analysis)
	assert.Equal(t, "noise", final.Analysis.TopFactors[0].FactorKey)

	rec = s.do(t, "POST", base+"/messages", tok, "application/json", `{"message":"one more"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "GET", "/v1/reports/"+started.SessionID, tok, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report model.Report
	decode(t, rec, &report)
	assert.Equal(t, started.SessionID, report.SessionID)

	rec = s.do(t, "GET", base, tok, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state model.SessionRecord
	decode(t, rec, &state)
	assert.Equal(t, model.SessionFinalized, state.State.Status)

	rec = s.do(t, "DELETE", base, tok, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, "GET", base, tok, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionAuth(t *testing.T) {
	s := newTestServer(t)
	started := s.start(t)
	path := "/v1/sessions/" + started.SessionID + "/messages"
	body := `{"message":"loud"}`

	rec := s.do(t, "POST", path, "", "application/json", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, "POST", path, "not-a-token", "application/json", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := s.auth.GenerateSessionToken("someone-else", testCategory)
	require.NoError(t, err)
	rec = s.do(t, "POST", path, other, "application/json", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "GET", "/v1/sessions/"+started.SessionID+"?token="+started.Token, "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code, "query token is accepted")
}

func TestStartErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/v1/sessions", "", "application/json", `{"category":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "POST", "/v1/sessions", "", "application/json", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategories(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "GET", "/v1/categories", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cats []model.Category
	decode(t, rec, &cats)
	require.Len(t, cats, 1)
	assert.Equal(t, testCategory, cats[0].Key)

	rec = s.do(t, "GET", "/v1/categories/"+testCategory+"/factors", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var factors []model.Factor
	decode(t, rec, &factors)
	assert.Len(t, factors, 2)

	rec = s.do(t, "GET", "/v1/categories/unknown/questions", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func adminToken(t *testing.T, s *testServer) string {
	t.Helper()
	rec := s.do(t, "POST", "/v1/admin/login", "", "application/json", `{"username":"admin","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.LoginResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAdminLogin(t *testing.T) {
	s := newTestServer(t)
	adminToken(t, s)

	rec := s.do(t, "POST", "/v1/admin/login", "", "application/json", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReplaceTaxonomy(t *testing.T) {
	s := newTestServer(t)
	path := "/v1/categories/furniture_chair/taxonomy"
	doc := `
factors:
  - factor_id: 1
    factor_key: back_pain
    display_name: Back pain
    anchor_terms: [" Back ", "lumbar"]
questions:
  - question_id: 10
    factor_id: 1
    question_text: Do you sit for long hours?
`

	rec := s.do(t, "PUT", path, "", "application/yaml", doc)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	started := s.start(t)
	rec = s.do(t, "PUT", path, started.Token, "application/yaml", doc)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "session tokens are not admin tokens")

	tok := adminToken(t, s)
	rec = s.do(t, "PUT", path, tok, "application/yaml", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"category":"furniture_chair","factors":1,"questions":1}`, rec.Body.String())

	stored := s.factors.byCat["furniture_chair"]
	require.Len(t, stored, 1)
	assert.Equal(t, "furniture_chair", stored[0].Category)
	assert.Equal(t, []string{"back", "lumbar"}, stored[0].AnchorTerms)

	rec = s.do(t, "PUT", path, tok, "application/json",
		`{"factors":[{"factorId":1,"factorKey":"a"}],"questions":[{"questionId":5,"factorId":9,"questionText":"?"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "question pointing at an unknown factor")
}

func TestImportReviews(t *testing.T) {
	s := newTestServer(t)
	tok := adminToken(t, s)
	path := "/v1/categories/" + testCategory + "/reviews"

	csv := "review_id,rating,text\nr10,1,Leaks water everywhere\nr11,2,Leaks  water everywhere\n"
	rec := s.do(t, "POST", path, tok, "text/csv", csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result service.ImportResult
	decode(t, rec, &result)
	assert.Equal(t, service.ImportResult{Total: 2, Duplicates: 1, Stored: 1}, result)

	rec = s.do(t, "POST", path, tok, "application/json", `[{"text":"Stopped working"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.Equal(t, 1, result.Stored)

	rec = s.do(t, "POST", path, tok, "text/csv", "text\nno id column\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
