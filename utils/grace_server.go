package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	serveTimeout    = 60 * time.Second
	shutdownGrace   = 30 * time.Second
	relaunchEnvKey  = "BG_GRACEFUL"
	relaunchEnvPair = relaunchEnvKey + "=1"
	inheritedFd     = 3 // listener fd passed to the relaunched child
)

// graceServer runs an HTTP server that shuts down cleanly on SIGTERM
// and replaces itself in place on SIGUSR2: the listener fd is handed to
// a fork-exec'd child so in-flight requests finish on the old process
// while new connections land on the new one.
type graceServer struct {
	httpServer *http.Server
	listener   net.Listener
	inherited  bool
	done       chan struct{}
}

// GraceServer serves handler on addr until terminated, with zero
// downtime restart support.
func GraceServer(addr string, handler http.Handler) error {
	srv := &graceServer{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  serveTimeout,
			WriteTimeout: serveTimeout,
		},
		inherited: os.Getenv(relaunchEnvKey) != "",
		done:      make(chan struct{}),
	}
	return srv.run()
}

func (s *graceServer) run() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln

	go s.watchSignals()

	err = s.httpServer.Serve(ln)
	// Serve returns as soon as the listener closes; wait for Shutdown
	// to drain in-flight requests.
	<-s.done
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// listen either binds the configured address or, after a SIGUSR2
// relaunch, adopts the listener fd inherited from the parent.
func (s *graceServer) listen() (net.Listener, error) {
	if s.inherited {
		ln, err := net.FileListener(os.NewFile(inheritedFd, "listener"))
		if err != nil {
			return nil, fmt.Errorf("adopt inherited listener: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return ln, nil
}

func (s *graceServer) watchSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGUSR2)

	for sig := range sigs {
		switch sig {
		case syscall.SIGTERM:
			Sugar.Info("SIGTERM received, draining HTTP server")
			s.shutdown()
			return
		case syscall.SIGUSR2:
			Sugar.Info("SIGUSR2 received, relaunching in place")
			pid, err := s.relaunch()
			if err != nil {
				Sugar.Errorf("relaunch failed, keeping current process: %v", err)
				continue
			}
			Sugar.Infof("child pid=%d took over the listener, draining old server", pid)
			s.shutdown()
			return
		}
	}
}

func (s *graceServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		Sugar.Errorf("shutdown: %v", err)
	}
	close(s.done)
}

// relaunch fork-execs the current binary with the listener fd appended
// after stdio and the relaunch marker in the environment.
func (s *graceServer) relaunch() (int, error) {
	tcpLn, ok := s.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener %T cannot be inherited", s.listener)
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("dup listener fd: %w", err)
	}

	env := make([]string, 0, len(os.Environ())+1)
	for _, kv := range os.Environ() {
		if kv != relaunchEnvPair {
			env = append(env, kv)
		}
	}
	env = append(env, relaunchEnvPair)

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec %s: %w", os.Args[0], err)
	}
	return pid, nil
}
