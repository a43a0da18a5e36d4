package service

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	repmetrics "ccms/internal/reputation/metrics"
	"ccms/internal/reputation/models"
	"ccms/internal/reputation/store/memory"
	"ccms/pkg/domain"
	dErrors "ccms/pkg/domain-errors"
	"ccms/pkg/platform/audit"
	"ccms/pkg/platform/audit/publisher"
	auditmemory "ccms/pkg/platform/audit/store/memory"
	"ccms/pkg/requestcontext"
)

const controller domain.AccountID = "controller"

var suggested = models.Weights{Attendance: 30, Voting: 25, Feedback: 20, Certification: 25}

type ServiceSuite struct {
	suite.Suite
	service    *Service
	auditStore *auditmemory.InMemoryStore
	metrics    *repmetrics.Metrics
	ctx        context.Context
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = repmetrics.New(prometheus.NewRegistry())
	s.service = New(memory.New(controller),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
	)
	s.now = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) initialize() {
	_, err := s.service.Initialize(s.ctx, controller, suggested)
	s.Require().NoError(err)
}

func (s *ServiceSuite) register(id domain.AccountID) {
	_, err := s.service.Register(s.ctx, id)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestWorkedExample() {
	s.initialize()
	s.register("A")

	composite, err := s.service.UpdateScores(s.ctx, controller, "A", models.Delta{Attendance: 2})
	s.Require().NoError(err)
	s.Equal(uint64(60), composite)

	composite, err = s.service.UpdateScores(s.ctx, controller, "A", models.Delta{Attendance: 1})
	s.Require().NoError(err)
	s.Equal(uint64(90), composite)

	account, err := s.service.GetAllScores(s.ctx, "A")
	s.Require().NoError(err)
	s.Equal(uint64(3), account.Scores.Attendance)
	s.Equal(uint64(90), account.Composite)
}

func (s *ServiceSuite) TestCompositeMatchesReplayedDeltas() {
	s.initialize()
	s.register("alice")

	rng := rand.New(rand.NewPCG(7, 11))
	var replay models.Scores
	for range 200 {
		d := models.Delta{
			Attendance:    rng.Uint64N(50),
			Voting:        rng.Uint64N(50),
			Feedback:      rng.Uint64N(50),
			Certification: rng.Uint64N(50),
		}
		replay.Attendance += d.Attendance
		replay.Voting += d.Voting
		replay.Feedback += d.Feedback
		replay.Certification += d.Certification

		composite, err := s.service.UpdateScores(s.ctx, controller, "alice", d)
		s.Require().NoError(err)

		expected := replay.Attendance*30 + replay.Voting*25 + replay.Feedback*20 + replay.Certification*25
		s.Require().Equal(expected, composite)
	}

	stored, err := s.service.GetComposite(s.ctx, "alice")
	s.Require().NoError(err)
	account, err := s.service.GetAllScores(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(replay, account.Scores)
	s.Equal(account.Composite, stored)
}

func (s *ServiceSuite) TestRegister() {
	s.Run("registration does not require initialization", func() {
		account, err := s.service.Register(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal(models.Scores{}, account.Scores)
		s.Equal(s.now, account.RegisteredAt)
	})

	s.Run("second registration fails and keeps scores", func() {
		s.initialize()
		_, err := s.service.UpdateScores(s.ctx, controller, "alice", models.Delta{Voting: 4})
		s.Require().NoError(err)

		_, err = s.service.Register(s.ctx, "alice")
		s.Require().ErrorIs(err, dErrors.New(dErrors.CodeAlreadyRegistered, ""))

		account, err := s.service.GetAllScores(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal(uint64(4), account.Scores.Voting)
		s.Equal(uint64(100), account.Composite)
	})

	s.Run("total users counts registrations", func() {
		s.register("bob")
		cfg, err := s.service.Config(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(2), cfg.TotalUsers)
		s.Equal(float64(2), promtest.ToFloat64(s.metrics.TotalUsers))
	})

	s.Run("empty caller is rejected", func() {
		_, err := s.service.Register(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestInitialize() {
	s.Run("non controller is unauthorized", func() {
		_, err := s.service.Initialize(s.ctx, "mallory", suggested)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		cfg, err := s.service.Config(s.ctx)
		s.Require().NoError(err)
		s.False(cfg.Initialized)
		s.Equal(models.Weights{}, cfg.Weights)
	})

	s.Run("controller initializes once", func() {
		cfg, err := s.service.Initialize(s.ctx, controller, suggested)
		s.Require().NoError(err)
		s.True(cfg.Initialized)
		s.Equal(suggested, cfg.Weights)

		_, err = s.service.Initialize(s.ctx, controller, models.Weights{Attendance: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInitialized))

		cfg, err = s.service.Config(s.ctx)
		s.Require().NoError(err)
		s.Equal(suggested, cfg.Weights)
		s.Equal(controller, cfg.Controller)
	})
}

func (s *ServiceSuite) TestUpdateScoresPreconditions() {
	s.register("alice")

	s.Run("not initialized", func() {
		_, err := s.service.UpdateScores(s.ctx, controller, "alice", models.Delta{Attendance: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeNotInitialized))
	})

	s.Run("unauthorized is reported before not initialized", func() {
		_, err := s.service.UpdateScores(s.ctx, "alice", "alice", models.Delta{Attendance: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.initialize()

	s.Run("unauthorized leaves state unchanged", func() {
		before, err := s.service.GetAllScores(s.ctx, "alice")
		s.Require().NoError(err)

		_, err = s.service.UpdateScores(s.ctx, "alice", "alice", models.Delta{Attendance: 5})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		after, err := s.service.GetAllScores(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal(before, after)
	})

	s.Run("unknown account", func() {
		_, err := s.service.UpdateScores(s.ctx, controller, "ghost", models.Delta{Attendance: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownAccount))
	})

	s.Run("overflow is atomic across pillars", func() {
		_, err := s.service.UpdateScores(s.ctx, controller, "alice", models.Delta{Attendance: 1})
		s.Require().NoError(err)

		_, err = s.service.UpdateScores(s.ctx, controller, "alice", models.Delta{Voting: 2, Feedback: math.MaxUint64})
		s.True(dErrors.HasCode(err, dErrors.CodeOverflow))

		account, err := s.service.GetAllScores(s.ctx, "alice")
		s.Require().NoError(err)
		s.Equal(models.Scores{Attendance: 1}, account.Scores)
		s.Equal(uint64(30), account.Composite)
	})

	s.Run("zero delta is accepted", func() {
		composite, err := s.service.UpdateScores(s.ctx, controller, "alice", models.Delta{})
		s.Require().NoError(err)
		s.Equal(uint64(30), composite)
	})
}

func (s *ServiceSuite) TestReadsOfUnknownAccount() {
	_, err := s.service.GetComposite(s.ctx, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownAccount))
	_, err = s.service.GetAllScores(s.ctx, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeUnknownAccount))
}

func (s *ServiceSuite) TestGetComposites() {
	s.initialize()
	s.register("alice")
	s.register("bob")
	_, err := s.service.UpdateScores(s.ctx, controller, "bob", models.Delta{Certification: 2})
	s.Require().NoError(err)

	got, err := s.service.GetComposites(s.ctx, []domain.AccountID{"alice", "bob", "ghost"})
	s.Require().NoError(err)
	s.Equal(map[domain.AccountID]uint64{"alice": 0, "bob": 50}, got)
}

func (s *ServiceSuite) TestAuditTrail() {
	s.initialize()
	s.register("alice")
	_, err := s.service.UpdateScores(s.ctx, controller, "alice", models.Delta{Feedback: 1})
	s.Require().NoError(err)
	_, err = s.service.UpdateScores(s.ctx, "mallory", "alice", models.Delta{Feedback: 1})
	s.Require().Error(err)

	events, err := s.auditStore.ListByAccount(s.ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventAccountRegistered), events[0].Action)
	s.Equal(string(audit.EventScoresUpdated), events[1].Action)
	s.Equal(uint64(20), events[1].Value)
	s.Equal(controller, events[1].ActorID)
	s.Equal(audit.LedgerReputation, events[1].Ledger)
	s.Equal(s.now, events[1].Timestamp)

	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Operations.WithLabelValues("update_scores", "unauthorized")))
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.Operations.WithLabelValues("update_scores", "ok")))
}
