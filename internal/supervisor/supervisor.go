// Package supervisor runs the long-lived services of the process under a
// suture tree: the HTTP server and the job worker.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/jengzang/records-tracks-go/internal/logging"
)

// Tree is the process supervisor: one branch for background work, one for the API.
type Tree struct {
	root *suture.Supervisor
	work *suture.Supervisor
	api  *suture.Supervisor
}

// New creates a tree whose services get shutdownTimeout to stop.
func New(shutdownTimeout time.Duration) *Tree {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	log := logging.Component("supervisor")

	root := suture.New("records-tracks", suture.Spec{
		EventHook: func(e suture.Event) {
			log.Warn().Int("event_type", int(e.Type())).Interface("details", e.Map()).Msg(e.String())
		},
		Timeout: shutdownTimeout,
	})
	work := suture.New("work", suture.Spec{Timeout: shutdownTimeout})
	api := suture.New("api", suture.Spec{Timeout: shutdownTimeout})
	root.Add(work)
	root.Add(api)

	return &Tree{root: root, work: work, api: api}
}

// AddWorker adds a background service such as the job worker.
func (t *Tree) AddWorker(svc suture.Service) suture.ServiceToken {
	return t.work.Add(svc)
}

// AddAPI adds an API-facing service.
func (t *Tree) AddAPI(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve runs the tree until ctx is cancelled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// HTTPServer is the lifecycle of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server as a supervised service.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps server. Shutdown waits up to shutdownTimeout for
// in-flight requests.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for supervisor logs.
func (h *HTTPService) String() string {
	return "http-server"
}
