package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The assistant runtime (or the emit subcommand) pushes lifecycle events to
// the daemon over a Unix domain socket.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "conversation_turn_finished", "data": {"with_follow_on_turn": false}}
//   - Server responds: {"status": "ok", "id": "<event id>"} or {"status": "error", "error": "msg"}
// ============================================================================

const ipcDialTimeout = 2 * time.Second

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string `json:"status"`          // "ok" or "error"
	ID     string `json:"id,omitempty"`    // queue id of the accepted event
	Error  string `json:"error,omitempty"` // error message if status == "error"
}

// runIPCServer serves the socket until ctx is canceled. It returns only after
// every connection handler has exited.
func runIPCServer(ctx context.Context, cfg IPCConfig, queue *EventQueue, logger *slog.Logger) error {
	listener, err := listenIPC(cfg)
	if err != nil {
		return err
	}
	return serveIPC(ctx, listener, cfg.SocketPath, queue, logger)
}

func listenIPC(cfg IPCConfig) (net.Listener, error) {
	socketPath := cfg.SocketPath
	gid := -1
	if cfg.SocketGroup != "" {
		g, err := user.LookupGroup(cfg.SocketGroup)
		if err != nil {
			return nil, fmt.Errorf("socket group: %w", err)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return nil, fmt.Errorf("socket group %s: bad gid %q", cfg.SocketGroup, g.Gid)
		}
	}

	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	// Owner and group only. The assistant bridge joins socket_group.
	if err := os.Chmod(socketPath, ipcSocketMode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	if gid >= 0 {
		if err := os.Chown(socketPath, -1, gid); err != nil {
			listener.Close()
			return nil, fmt.Errorf("chown socket: %w", err)
		}
	}
	return listener, nil
}

func serveIPC(ctx context.Context, listener net.Listener, socketPath string, queue *EventQueue, logger *slog.Logger) error {
	defer os.Remove(socketPath)

	logger.Info("IPC listening", "socket", socketPath)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)

	// Close the listener and any open connections on shutdown. This unblocks
	// Accept() and the per-connection scanners.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
		mu.Lock()
		for c := range conns {
			_ = c.Close()
		}
		mu.Unlock()
	}()

	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			handleIPCConnection(conn, queue, logger)
			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
		}()
	}
}

// handleIPCConnection reads events line by line and queues them.
func handleIPCConnection(conn net.Conn, queue *EventQueue, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		ev, err := UnmarshalEvent([]byte(line))
		if err != nil {
			response := IPCResponse{
				Status: "error",
				Error:  fmt.Sprintf("parse event: %v", err),
			}
			if encErr := encoder.Encode(response); encErr != nil {
				logger.Error("IPC failed to send error response", "error", encErr)
			}
			continue
		}

		// The queue is unbounded, so an accepted event is never dropped.
		id := queue.Put(ev)
		if encErr := encoder.Encode(IPCResponse{Status: "ok", ID: id.String()}); encErr != nil {
			logger.Error("IPC failed to send success response", "error", encErr)
		}
	}

	logger.Debug("IPC connection closed")
}

// ============================================================================
// IPC Client
// ============================================================================

// SendIPCEvent sends one event to the daemon and returns the id it was
// queued under.
func SendIPCEvent(socketPath string, ev LifecycleEvent) (string, error) {
	conn, err := net.DialTimeout("unix", socketPath, ipcDialTimeout)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcDialTimeout))

	data, err := MarshalEvent(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return "", fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return "", fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp.ID, nil
}
