package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthCheckTimeout = 2 * time.Second

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every check concurrently under a 2s deadline. Any
// failure, panic or timeout reports 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if len(s.HealthChecks) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	errs := make([]error, len(s.HealthChecks))
	var g errgroup.Group
	for i, hc := range s.HealthChecks {
		g.Go(func() error {
			errs[i] = runCheck(ctx, hc)
			return nil
		})
	}
	_ = g.Wait()

	resp := healthResponse{Status: "healthy", Components: make(map[string]componentStatus, len(s.HealthChecks))}
	for i, hc := range s.HealthChecks {
		if errs[i] != nil {
			resp.Status = "unhealthy"
			resp.Components[hc.Name()] = componentStatus{Status: "unhealthy", Message: errs[i].Error()}
			continue
		}
		resp.Components[hc.Name()] = componentStatus{Status: "healthy"}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

func runCheck(ctx context.Context, p HealthCheck) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rvr := recover(); rvr != nil {
				done <- fmt.Errorf("check panicked: %v", rvr)
			}
		}()
		done <- p.Check(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("health check timed out")
	}
}
