// Package service exposes sort and verify jobs over gRPC.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/KevoDB/chunksort/pkg/common/errs"
	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/extsort"
	"github.com/KevoDB/chunksort/pkg/record"
	"github.com/KevoDB/chunksort/pkg/recordio"
	"github.com/KevoDB/chunksort/pkg/stats"
	"github.com/KevoDB/chunksort/pkg/telemetry"
	"github.com/KevoDB/chunksort/pkg/verify"
)

// DefaultMaxJobs bounds concurrently running sort jobs.
const DefaultMaxJobs = 2

// SortServiceServer runs person-file sort jobs on the server's disk. Every
// path a client names must lie under the base config's DataRoot.
type SortServiceServer struct {
	base   *config.Config
	root   string
	logger log.Logger
	tel    telemetry.Telemetry
	stats  *stats.AtomicCollector

	jobs   chan struct{}
	jobSeq atomic.Uint64
}

// Option configures a SortServiceServer.
type Option func(*SortServiceServer)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(s *SortServiceServer) {
		s.logger = logger
	}
}

// WithTelemetry sets the telemetry shared by all jobs.
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *SortServiceServer) {
		s.tel = tel
	}
}

// WithMaxJobs sets how many sorts may run at once. Further requests wait.
func WithMaxJobs(n int) Option {
	return func(s *SortServiceServer) {
		if n > 0 {
			s.jobs = make(chan struct{}, n)
		}
	}
}

// NewSortServiceServer creates a server whose jobs start from base.
func NewSortServiceServer(base *config.Config, opts ...Option) *SortServiceServer {
	s := &SortServiceServer{
		base:   base.Clone(),
		logger: log.Component("grpc"),
		tel:    telemetry.NewNoop(),
		stats:  stats.NewAtomicCollector(),
		jobs:   make(chan struct{}, DefaultMaxJobs),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.base.DataRoot != "" {
		root, err := realPath(s.base.DataRoot)
		if err != nil {
			s.logger.Error("cannot resolve data root %s, rejecting all jobs: %v", s.base.DataRoot, err)
		} else {
			s.root = root
		}
	}
	return s
}

// confine rewrites each non-empty path to its resolved form under the data
// root. Relative paths are taken from the root. A path that leaves the root,
// directly or through a symlink, is a config error.
func (s *SortServiceServer) confine(paths ...*string) error {
	if s.root == "" {
		return errs.Config(errs.PhaseConfig, "server has no data root")
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		path := *p
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.root, path)
		}
		resolved, err := realPath(path)
		if err != nil {
			return errs.Config(errs.PhaseConfig, "cannot resolve %q: %v", *p, err)
		}
		rel, err := filepath.Rel(s.root, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return errs.Config(errs.PhaseConfig, "path %q is outside the data root", *p)
		}
		*p = resolved
	}
	return nil
}

// realPath returns the absolute, symlink-free form of path. Trailing
// components that do not exist yet are kept as given.
func realPath(path string) (string, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(path)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return "", err
		}
		missing = append([]string{filepath.Base(path)}, missing...)
		path = parent
	}
}

// Sort runs one sort job to completion.
func (s *SortServiceServer) Sort(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := sortRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.confine(&req.Input, &req.Output, &req.ChunkDir); err != nil {
		return nil, toStatus(err)
	}

	cfg, err := s.jobConfig(req)
	if err != nil {
		return nil, toStatus(err)
	}

	select {
	case s.jobs <- struct{}{}:
		defer func() { <-s.jobs }()
	case <-ctx.Done():
		return nil, toStatus(ctx.Err())
	}

	logger := s.logger.WithFields(map[string]any{"input": req.Input, "output": req.Output})
	res, err := extsort.SortPeople(ctx, cfg, req.Input, req.Output,
		extsort.WithLogger(logger),
		extsort.WithTelemetry(s.tel),
		extsort.WithStats(s.stats),
	)
	if err != nil {
		logger.Error("sort job failed: %v", err)
		return nil, toStatus(err)
	}

	out, err := SortResponse{
		Chunks:        len(res.Chunks),
		Records:       res.Records,
		ChunkDuration: res.ChunkDuration,
		SortDuration:  res.SortDuration,
		MergeDuration: res.MergeDuration,
	}.toStruct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// jobConfig applies request overrides to a copy of the base config. Jobs
// without an explicit chunk directory get their own under the base one.
func (s *SortServiceServer) jobConfig(req SortRequest) (*config.Config, error) {
	cfg := s.base.Clone()

	var err error
	cfg.Update(func(c *config.Config) {
		if req.ChunkDir != "" {
			c.ChunkDir = req.ChunkDir
		} else {
			c.ChunkDir = filepath.Join(c.ChunkDir, fmt.Sprintf("job-%d", s.jobSeq.Add(1)))
		}
		if req.ChunkSize > 0 {
			c.ChunkSize = req.ChunkSize
		}
		if req.Parallelism > 0 {
			c.Parallelism = req.Parallelism
		}
		if req.Compression != "" {
			if c.Compression, err = config.ParseCompression(req.Compression); err != nil {
				return
			}
		}
		if req.MergeStrategy != "" {
			if c.MergeStrategy, err = config.ParseMergeStrategy(req.MergeStrategy); err != nil {
				return
			}
		}
		c.RawChunking = c.RawChunking || req.RawChunking
		c.RemoveChunks = c.RemoveChunks || req.RemoveChunks
	})
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Verify compares an input file with a sorted output file.
func (s *SortServiceServer) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := verifyRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.confine(&req.Input, &req.Output); err != nil {
		return nil, toStatus(err)
	}

	codec, err := config.ParseCompression(req.Compression)
	if err != nil {
		return nil, toStatus(err)
	}

	format := record.People()
	inSum, err := verify.Fingerprint(ctx, req.Input, format)
	if err != nil {
		return nil, toStatus(err)
	}
	outSum, err := verify.Fingerprint(ctx, req.Output, format, recordio.WithCompression(codec))
	if err != nil {
		return nil, toStatus(err)
	}
	s.stats.TrackOperation(stats.OpVerify)

	out, err := VerifyResponse{
		InputRecords:      inSum.Records,
		OutputRecords:     outSum.Records,
		SameMultiset:      inSum.SameMultiset(outSum),
		Sorted:            outSum.Sorted,
		FirstUnsortedLine: outSum.FirstUnsortedLine,
	}.toStruct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Stats returns the collector snapshot of every job this server ran.
func (s *SortServiceServer) Stats(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(plainStats(s.stats.GetStats()))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// plainStats converts collector values into types structpb accepts.
func plainStats(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch v := v.(type) {
		case map[string]uint64:
			m := make(map[string]any, len(v))
			for kk, vv := range v {
				m[kk] = vv
			}
			out[k] = m
		case map[string]any:
			out[k] = plainStats(v)
		default:
			out[k] = v
		}
	}
	return out
}

var _ SortServiceHandler = (*SortServiceServer)(nil)
