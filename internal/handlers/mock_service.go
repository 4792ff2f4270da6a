package handlers

import (
	"context"
	"net/http"
	"time"

	"cauldronwatch"
	"cauldronwatch/internal/logger"
	"cauldronwatch/internal/service"
	"cauldronwatch/internal/store"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockHistory struct {
	resp []cauldronwatch.HistorySnapshot
	err  error

	lastStart    time.Time
	lastEnd      time.Time
	windowCalls  int
	refreshCalls int
}

func (m *mockHistory) Window(ctx context.Context, start, end time.Time) ([]cauldronwatch.HistorySnapshot, error) {
	m.windowCalls++
	m.lastStart = start
	m.lastEnd = end
	return m.resp, m.err
}
func (m *mockHistory) Refresh() {
	m.refreshCalls++
}

type mockDiscrepancies struct {
	reportResp cauldronwatch.DiscrepancyReport
	reportErr  error
	detectResp cauldronwatch.DiscrepancyReport
	detectErr  error
	drainsResp []cauldronwatch.DrainEvent
	drainsErr  error

	lastSeverity  string
	lastCauldron  string
	lastStartDate string
	lastEndDate   string
	detectCalls   int
}

func (m *mockDiscrepancies) Report(ctx context.Context, severity, cauldronID string) (cauldronwatch.DiscrepancyReport, error) {
	m.lastSeverity = severity
	m.lastCauldron = cauldronID
	return m.reportResp, m.reportErr
}
func (m *mockDiscrepancies) Detect(ctx context.Context, startDate, endDate string) (cauldronwatch.DiscrepancyReport, error) {
	m.detectCalls++
	m.lastStartDate = startDate
	m.lastEndDate = endDate
	return m.detectResp, m.detectErr
}
func (m *mockDiscrepancies) Drains(ctx context.Context, startDate, endDate string) ([]cauldronwatch.DrainEvent, error) {
	m.lastStartDate = startDate
	m.lastEndDate = endDate
	return m.drainsResp, m.drainsErr
}

type mockEventLog struct {
	resp     []cauldronwatch.SyncEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]cauldronwatch.SyncEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestStore() *store.Store {
	return store.New(logger.Nop())
}

func newTestRouter(s *service.Service, st *store.Store) *gin.Engine {
	h := NewHandler(s, st, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
