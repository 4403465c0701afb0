// Package core wires the object registry, persistence bridge, primitive
// archive, and observability into the service surface used by entity
// callers.
package core

import (
	"context"
	"time"

	"fleetcore/internal/archive"
	"fleetcore/pkg/compute"
	"fleetcore/pkg/objects"
)

// Service exposes keyed loads, list loads, and persistence operations over
// the compute entity types.
type Service struct {
	reg     *objects.Registry
	bridge  objects.Bridge
	arch    archive.Store
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger installs a diagnostics logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer installs a span tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithArchive retains every envelope emitted by Save in the given archive.
func WithArchive(a archive.Store) Option {
	return func(s *Service) { s.arch = a }
}

// NewService constructs a service over the given registry and bridge.
func NewService(reg *objects.Registry, bridge objects.Bridge, opts ...Option) *Service {
	s := &Service{
		reg:    reg,
		bridge: bridge,
		logger: NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the service's type registry.
func (s *Service) Registry() *objects.Registry { return s.reg }

// Bridge returns the underlying persistence bridge.
func (s *Service) Bridge() objects.Bridge { return s.bridge }

// instrument runs fn as one observed operation.
func (s *Service) instrument(ctx context.Context, operation string, fn func() error) error {
	started := time.Now().UTC()
	err := fn()
	ended := time.Now().UTC()
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, ended.Sub(started))
	}
	if s.tracer != nil {
		entry := TraceEntry{
			Operation:  operation,
			Status:     "success",
			DurationMS: float64(ended.Sub(started)) / float64(time.Millisecond),
			StartedAt:  started,
			EndedAt:    ended,
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
		}
		s.tracer.Trace(ctx, entry)
	}
	if err != nil {
		s.logger.Errorf("%s: %v", operation, err)
	} else {
		s.logger.Debugf("%s ok", operation)
	}
	return err
}

// GetInstance loads one instance by key, joining the named optional fields.
func (s *Service) GetInstance(ctx context.Context, key string, expected ...string) (*compute.Instance, error) {
	var inst *compute.Instance
	err := s.instrument(ctx, "get_instance", func() error {
		var err error
		inst, err = compute.GetInstance(ctx, s.reg, s.bridge, key, expected...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// ListInstancesByHost loads every instance on the given compute host.
func (s *Service) ListInstancesByHost(ctx context.Context, host string, expected ...string) (*compute.InstanceList, error) {
	var list *compute.InstanceList
	err := s.instrument(ctx, "list_instances_by_host", func() error {
		var err error
		list, err = compute.GetInstancesByHost(ctx, s.reg, s.bridge, host, expected...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// ListInstancesByFilter loads every instance matching the filter.
func (s *Service) ListInstancesByFilter(ctx context.Context, match map[string]any, sortKey, sortDir string, expected ...string) (*compute.InstanceList, error) {
	var list *compute.InstanceList
	err := s.instrument(ctx, "list_instances_by_filter", func() error {
		var err error
		list, err = compute.GetInstancesByFilter(ctx, s.reg, s.bridge, match, sortKey, sortDir, expected...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// SaveInstance persists the instance's changed fields and, when an archive
// is configured, retains the pre-save envelope for audit.
func (s *Service) SaveInstance(ctx context.Context, inst *compute.Instance) error {
	return s.instrument(ctx, "save_instance", func() error {
		if s.arch != nil && len(inst.Base().Changes()) > 0 {
			prim, err := inst.Base().ToPrimitive()
			if err != nil {
				return err
			}
			key, err := archive.PutPrimitive(ctx, s.arch, prim)
			if err != nil {
				return err
			}
			s.logger.Debugf("archived %s as %s", prim.TypeName, key)
		}
		return inst.Save(ctx)
	})
}

// RefreshInstance reloads the instance from the backing store.
func (s *Service) RefreshInstance(ctx context.Context, inst *compute.Instance) error {
	return s.instrument(ctx, "refresh_instance", func() error {
		return inst.Refresh(ctx)
	})
}
