package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/system"
)

// Service adapts NewRouter's handler to the system.Manager lifecycle, the
// way the teacher's internal/app/httpapi.Service wraps its handler in an
// http.Server with a Start/Stop pair.
type Service struct {
	addr   string
	server *http.Server
	log    *logging.Logger
}

var _ system.Service = (*Service)(nil)

func NewHTTPService(addr string, d Deps) *Service {
	return &Service{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(d),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		log: d.Log,
	}
}

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server error")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
