package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"ccms/internal/reputation/service"
	"ccms/internal/reputation/store/memory"
	"ccms/pkg/domain"
	"ccms/pkg/platform/httputil"
	"ccms/pkg/requestcontext"
	"ccms/pkg/testutil"
)

const controller domain.AccountID = "controller"

const callerHeader = "X-Test-Caller"

// headerAuth stands in for the JWT middleware.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(callerHeader)
		if caller == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "unauthorized"})
			return
		}
		ctx := requestcontext.WithCaller(r.Context(), domain.AccountID(caller))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := service.New(memory.New(controller), service.WithLogger(logger))
	r := chi.NewRouter()
	New(svc, logger, headerAuth).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(req *http.Request, caller domain.AccountID) *httptest.ResponseRecorder {
	if caller != "" {
		req.Header.Set(callerHeader, string(caller))
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) initialize() {
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/initialize", map[string]any{
		"weights": map[string]uint64{"attendance": 30, "voting": 25, "feedback": 20, "certification": 25},
	}), controller)
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *HandlerSuite) register(id domain.AccountID) {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/reputation/accounts"), id)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
}

func (s *HandlerSuite) TestMutationsRequireToken() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/reputation/accounts"), "")
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestRegister() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/reputation/accounts"), "alice")
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[AccountResponse](s.T(), rr)
	s.Equal(domain.AccountID("alice"), resp.Account)
	s.Zero(resp.Composite)

	s.Run("duplicate registration conflicts", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodPost, "/reputation/accounts"), "alice")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_registered")
	})
}

func (s *HandlerSuite) TestInitialize() {
	s.Run("non-controller is forbidden", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/initialize", map[string]any{
			"weights": map[string]uint64{"attendance": 1},
		}), "mallory")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("missing weights is a bad request", func() {
		rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/reputation/initialize", `{}`), controller)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("unknown fields are rejected", func() {
		rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/reputation/initialize",
			`{"weights":{"attendance":1},"extra":true}`), controller)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.initialize()

	s.Run("second initialize conflicts", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/initialize", map[string]any{
			"weights": map[string]uint64{"attendance": 1},
		}), controller)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "already_initialized")
	})
}

func (s *HandlerSuite) TestUpdateScoresBeforeInitialize() {
	s.register("alice")
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/accounts/alice/scores",
		UpdateScoresRequest{Attendance: 1}), controller)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "not_initialized")
}

func (s *HandlerSuite) TestUpdateAndReadScores() {
	s.initialize()
	s.register("alice")

	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/accounts/alice/scores",
		UpdateScoresRequest{Attendance: 10, Voting: 5, Feedback: 8, Certification: 2}), controller)
	testutil.AssertStatusOK(s.T(), rr)
	// 10*30 + 5*25 + 8*20 + 2*25
	s.Equal(uint64(635), testutil.UnmarshalResponse[CompositeResponse](s.T(), rr).Composite)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/reputation/accounts/alice/composite"), "")
	testutil.AssertStatusOK(s.T(), rr)
	s.Equal(uint64(635), testutil.UnmarshalResponse[CompositeResponse](s.T(), rr).Composite)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/reputation/accounts/alice/scores"), "")
	testutil.AssertStatusOK(s.T(), rr)
	scores := testutil.UnmarshalResponse[AccountResponse](s.T(), rr)
	s.Equal(uint64(10), scores.Scores.Attendance)
	s.Equal(uint64(2), scores.Scores.Certification)

	s.Run("non-controller update is forbidden", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/accounts/alice/scores",
			UpdateScoresRequest{Attendance: 1}), "alice")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "unauthorized")
	})

	s.Run("unknown account is not found", func() {
		rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/accounts/bob/scores",
			UpdateScoresRequest{Attendance: 1}), controller)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_account")
	})

	s.Run("negative delta does not decode", func() {
		rr := s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/reputation/accounts/alice/scores",
			`{"attendance":-1}`), controller)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestReadUnknownAccount() {
	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/reputation/accounts/ghost/composite"), "")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_account")
}

func (s *HandlerSuite) TestGetComposites() {
	s.initialize()
	s.register("alice")
	s.register("bob")
	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/reputation/accounts/bob/scores",
		UpdateScoresRequest{Voting: 2}), controller)
	testutil.AssertStatusOK(s.T(), rr)

	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet,
		"/reputation/composites?account=alice&account=bob&account=ghost&account=bob"), "")
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[CompositesResponse](s.T(), rr)
	s.Equal(map[domain.AccountID]uint64{"alice": 0, "bob": 50}, resp.Composites)

	s.Run("requires at least one account", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/reputation/composites"), "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *HandlerSuite) TestConfig() {
	s.register("alice")
	s.register("bob")

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/reputation/config"), "")
	testutil.AssertStatusOK(s.T(), rr)
	cfg := testutil.UnmarshalResponse[ConfigResponse](s.T(), rr)
	s.Equal(controller, cfg.Controller)
	s.False(cfg.Initialized)
	s.Equal(uint64(2), cfg.TotalUsers)
}

func TestHandleRegisterWithoutCaller(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(service.New(memory.New(controller)), logger, headerAuth)

	rr := testutil.DoRequest(http.HandlerFunc(h.HandleRegister),
		testutil.NewRequest(t, http.MethodPost, "/reputation/accounts"))

	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "unauthorized", testutil.UnmarshalErrorResponse(t, rr)["error"])
}
