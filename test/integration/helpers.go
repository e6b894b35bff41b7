package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"NftBridge/client"
)

// safeBuffer wraps bytes.Buffer with a mutex for concurrent read/write.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends data to the buffer (implements io.Writer).
func (sb *safeBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.buf.Write(p)
}

// String returns the buffer contents as a string.
func (sb *safeBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	return sb.buf.String()
}

// TestNode is a running node process.
type TestNode struct {
	cmd      *exec.Cmd          // cmd is the running process
	httpAddr string             // httpAddr is the HTTP API address
	dataDir  string             // dataDir is the node's data directory
	keyPath  string             // keyPath is the administrator key file
	stdout   *safeBuffer        // stdout captures process output
	stderr   *safeBuffer        // stderr captures process errors
	cancel   context.CancelFunc // cancel stops the process
}

// buildBinary compiles the node binary.
func buildBinary(t *testing.T) string {
	t.Helper()

	binary := filepath.Join(t.TempDir(), "bridge-node")

	cmd := exec.Command("go", "build", "-o", binary, "./cmd/node")
	cmd.Dir = getProjectRoot(t)

	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, output)
	}

	return binary
}

// getProjectRoot walks up from the working directory to go.mod.
func getProjectRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("get working dir: %v", err)
	}

	dir := wd
	for i := 0; i < 5; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find project root from %s", wd)
	return ""
}

// freeAddr reserves a loopback port and releases it for the node.
func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	return l.Addr().String()
}

// startNode starts a node process administered by admin and waits until it
// serves HTTP.
func startNode(t *testing.T, binary, dataDir string, admin *client.Wallet, extra ...string) *TestNode {
	t.Helper()

	node := &TestNode{
		httpAddr: freeAddr(t),
		dataDir:  dataDir,
		keyPath:  filepath.Join(dataDir, "admin.key"),
		stdout:   &safeBuffer{},
		stderr:   &safeBuffer{},
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("create data dir: %v", err)
	}

	if err := admin.Save(node.keyPath); err != nil {
		t.Fatalf("save admin key: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	node.cancel = cancel

	args := append([]string{
		"-data", node.dataDir,
		"-http", node.httpAddr,
		"-key", node.keyPath,
		"-initial-mint", "1000000",
		"-log-level", "debug",
	}, extra...)

	node.cmd = exec.CommandContext(ctx, binary, args...)
	node.cmd.Stdout = node.stdout
	node.cmd.Stderr = node.stderr

	if err := node.cmd.Start(); err != nil {
		t.Fatalf("start node: %v", err)
	}

	t.Cleanup(node.stop)

	if err := waitHealthy(node.httpAddr, 15*time.Second); err != nil {
		t.Fatalf("node not healthy: %v\nstdout:\n%s\nstderr:\n%s", err, node.stdout.String(), node.stderr.String())
	}

	return node
}

// waitHealthy polls /health until it answers 200.
func waitHealthy(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	httpCli := &http.Client{Timeout: time.Second}

	for time.Now().Before(deadline) {
		resp, err := httpCli.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("timeout after %s", timeout)
}

// stop terminates the node process.
func (n *TestNode) stop() {
	if n.cmd == nil || n.cmd.Process == nil {
		return
	}

	n.cmd.Process.Signal(os.Interrupt)

	done := make(chan struct{})
	go func() {
		n.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		n.cancel()
		<-done
	}

	n.cmd = nil
}

// connect returns a client for the node.
func (n *TestNode) connect(t *testing.T) *client.Client {
	t.Helper()

	c, err := client.NewClient(n.httpAddr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	return c
}
