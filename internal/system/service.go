// Package system defines the lifecycle contract shared by every background
// component (HTTP server, email dispatcher, sweepers), following the
// teacher's internal/app/system.Service/Manager idiom.
package system

import (
	"context"
	"fmt"

	"github.com/aethermarket/coordinator/internal/logging"
)

// Service is anything with an explicit start/stop lifecycle.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts and stops a fixed set of services in registration order,
// reversing order on shutdown.
type Manager struct {
	log      *logging.Logger
	services []Service
}

func NewManager(log *logging.Logger) *Manager {
	return &Manager{log: log}
}

func (m *Manager) Register(s Service) {
	m.services = append(m.services, s)
}

func (m *Manager) StartAll(ctx context.Context) error {
	for _, s := range m.services {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		m.log.WithField("service", s.Name()).Info("service started")
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		s := m.services[i]
		if err := s.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", s.Name()).Warn("service stop failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.log.WithField("service", s.Name()).Info("service stopped")
	}
	return firstErr
}
