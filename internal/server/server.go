package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/adaptive-dbn/internal/codec"
	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/logging"
	"github.com/danielpatrickdp/adaptive-dbn/internal/metrics"
	"github.com/danielpatrickdp/adaptive-dbn/internal/state"
	"github.com/danielpatrickdp/adaptive-dbn/internal/update"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region types
// Options configures a Server. Every field is optional.
type Options struct {
	// Store persists the update log and periodic snapshots. Nil keeps the
	// network purely in memory.
	Store *state.Store
	// VersionID is the stored version the live network was loaded from.
	// Empty means the store's active version.
	VersionID string
	// CommitEvery snapshots the network after this many committed updates.
	// 0 only snapshots on Flush.
	CommitEvery int
	Learner     update.Config
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// Server exposes one live network over gRPC.
type Server struct {
	net     *dbn.Network
	store   *state.Store
	learner update.Config
	every   int
	metrics *metrics.Metrics
	logger  *zap.Logger

	// mu serializes learner steps so before/after rows and the version
	// pointer stay consistent.
	mu        sync.Mutex
	versionID string
	pending   int
}

// #endregion types

// #region constructor
// New wraps n. With a store, the active version is looked up when
// opts.VersionID is empty.
func New(n *dbn.Network, opts Options) (*Server, error) {
	if opts.Learner.LearningRate == 0 {
		opts.Learner = update.DefaultConfig()
	}
	s := &Server{
		net:       n,
		store:     opts.Store,
		learner:   opts.Learner,
		every:     opts.CommitEvery,
		metrics:   opts.Metrics,
		logger:    logging.OrNop(opts.Logger),
		versionID: opts.VersionID,
	}
	if s.store != nil && s.versionID == "" {
		rec, err := s.store.GetCurrent()
		if err != nil {
			return nil, fmt.Errorf("resolve active version: %w", err)
		}
		s.versionID = rec.VersionID
	}
	return s, nil
}

// Register installs the service on g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

// VersionID returns the stored version updates are currently logged against.
func (s *Server) VersionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionID
}

// #endregion constructor

// #region infer
func (s *Server) infer(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r, err := codec.DecodeInferRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}
	dist, err := s.net.Infer(r.Variable, r.Time, r.Evidence)
	s.metrics.ObserveInfer(err)
	if err != nil {
		s.logger.Warn("infer failed", zap.String("variable", r.Variable), zap.Int("t", r.Time), zap.Error(err))
		return nil, toStatus(err)
	}
	return codec.EncodeDistribution(dist)
}

// #endregion infer

// #region update
func (s *Server) update(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r, err := codec.DecodeUpdateRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An explicit lr, zero included, replaces the default so that the
	// learner rejects out-of-range rates instead of substituting one.
	cfg := s.learner
	if r.LearningRate != nil {
		cfg.LearningRate = *r.LearningRate
	}
	res, applyErr := update.Apply(s.net, update.Observation{
		Variable: r.Variable,
		Parents:  r.Parents,
		Value:    r.Value,
	}, cfg)
	s.metrics.ObserveUpdate(res.Decision.Action, res.Metrics.Shift)

	if err := s.record(res); err != nil {
		s.logger.Error("update log failed", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	if applyErr != nil {
		s.logger.Warn("update rejected", zap.String("variable", r.Variable), zap.Error(applyErr))
		return nil, toStatus(applyErr)
	}

	s.logger.Debug("update applied",
		zap.String("variable", r.Variable),
		zap.Strings("parents", r.Parents),
		zap.String("value", r.Value),
		zap.String("action", res.Decision.Action),
		zap.Float64("shift", res.Metrics.Shift),
	)

	reply := codec.UpdateReply{
		Action:    res.Decision.Action,
		Reason:    res.Decision.Reason,
		Shift:     res.Metrics.Shift,
		VersionID: s.versionID,
	}
	if res.Decision.Action == "commit" {
		s.pending++
		if s.every > 0 && s.pending >= s.every {
			if err := s.snapshotLocked(); err != nil {
				s.logger.Error("snapshot failed", zap.Error(err))
				return nil, status.Error(codes.Internal, err.Error())
			}
		}
	}
	return codec.EncodeUpdateReply(reply)
}

// record writes res to the update log against the current version.
func (s *Server) record(res update.Result) error {
	if s.store == nil {
		return nil
	}
	return logging.LogUpdate(s.store.DB(), logging.UpdateEntry{
		VersionID:    s.versionID,
		Variable:     res.Observation.Variable,
		Parents:      res.Observation.Parents,
		Observed:     res.Observation.Value,
		LearningRate: res.Observation.LearningRate,
		Decision:     res.Decision.Action,
		Reason:       res.Decision.Reason,
		Shift:        res.Metrics.Shift,
	})
}

// #endregion update

// #region snapshot
// Flush snapshots the network if any committed update is not yet stored.
func (s *Server) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == 0 {
		return nil
	}
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() error {
	if s.store == nil {
		s.pending = 0
		return nil
	}
	rec := state.Snapshot(s.net, s.versionID)
	if err := s.store.CommitVersion(rec); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	s.logger.Info("network snapshot committed",
		zap.String("version_id", rec.VersionID),
		zap.String("parent_id", s.versionID),
		zap.Int("updates", s.pending),
	)
	s.versionID = rec.VersionID
	s.pending = 0
	return nil
}

// #endregion snapshot

// #region structure
func (s *Server) parents(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	variable, err := codec.DecodeParentsRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}
	return codec.EncodeParents(s.net.Parents(variable))
}

func (s *Server) unroll(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	slices, err := codec.DecodeUnrollRequest(req)
	if err != nil {
		return nil, toStatus(err)
	}
	return codec.EncodeUnroll(s.net.Unroll(slices))
}

// #endregion structure

// #region errors
// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, dbn.ErrUndefinedCPT), errors.Is(err, dbn.ErrUndefinedCPTEntry):
		code = codes.NotFound
	case errors.Is(err, dbn.ErrMissingEvidence):
		code = codes.FailedPrecondition
	case errors.Is(err, dbn.ErrInvalidLearningRate), errors.Is(err, codec.ErrMalformed):
		code = codes.InvalidArgument
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// #endregion errors
