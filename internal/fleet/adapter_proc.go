package fleet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"fleetd/pkg/types"
)

// ProcAdapter launches services as host subprocesses and probes their
// health endpoint over HTTP. One instance serves any number of services.
type ProcAdapter struct {
	mu         sync.Mutex
	procs      map[int]*exec.Cmd // key: pid
	httpClient *http.Client
}

// NewProcAdapter constructs a subprocess-backed adapter.
func NewProcAdapter() *ProcAdapter {
	// Timeout intentionally 0: every call carries a context deadline.
	return &ProcAdapter{
		procs:      make(map[int]*exec.Cmd),
		httpClient: &http.Client{Timeout: 0},
	}
}

func (a *ProcAdapter) Start(ctx context.Context, spec types.ServiceSpec) (Handle, error) {
	if spec.Command == "" {
		return Handle{}, fmt.Errorf("service %s has no launch command", spec.ID)
	}
	cmd := exec.Command(spec.Command, spec.Args...)
	// Own process group so Stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return Handle{}, err
	}
	pid := cmd.Process.Pid
	a.mu.Lock()
	a.procs[pid] = cmd
	a.mu.Unlock()

	// Reap on exit so the entry does not leak.
	go func() {
		_ = cmd.Wait()
		a.mu.Lock()
		delete(a.procs, pid)
		a.mu.Unlock()
	}()

	return Handle{PID: pid, Endpoint: endpointFromHealthURL(spec.HealthURL)}, nil
}

func (a *ProcAdapter) Stop(ctx context.Context, h Handle) error {
	if h.External || h.PID == 0 {
		return errors.New("process is externally managed; refusing to signal it")
	}
	a.mu.Lock()
	cmd := a.procs[h.PID]
	a.mu.Unlock()
	if cmd == nil {
		// Already exited and reaped.
		return nil
	}

	// SIGTERM the group, escalate to SIGKILL if the deadline passes.
	_ = syscall.Kill(-h.PID, syscall.SIGTERM)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			a.mu.Lock()
			_, alive := a.procs[h.PID]
			a.mu.Unlock()
			if !alive {
				close(done)
				return
			}
			select {
			case <-quit:
				return
			case <-time.After(50 * time.Millisecond):
			}
		}
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = syscall.Kill(-h.PID, syscall.SIGKILL)
		select {
		case <-done:
			return nil
		case <-time.After(2 * time.Second):
			return fmt.Errorf("process %d did not exit after SIGKILL", h.PID)
		}
	}
}

func (a *ProcAdapter) HealthCheck(ctx context.Context, spec types.ServiceSpec) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.HealthURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// endpointFromHealthURL derives the service base endpoint from its health
// URL by dropping the path.
func endpointFromHealthURL(healthURL string) string {
	u, err := url.Parse(healthURL)
	if err != nil || u.Host == "" {
		return healthURL
	}
	return u.Scheme + "://" + u.Host
}
