package e2e_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/factory"
)

// cliRunner runs the CLI binary as one identity with its own token file
type cliRunner struct {
	binaryPath string
	serverURL  string
	tokenFile  string
}

func newCLIRunner(t *testing.T, serverURL string) *cliRunner {
	t.Helper()

	projectRoot := findProjectRoot(t)

	binaryPath := filepath.Join(projectRoot, "bin", "loungectl-test")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/loungectl")
	cmd.Dir = projectRoot
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build CLI: %s", string(output))

	return &cliRunner{
		binaryPath: binaryPath,
		serverURL:  serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

// another returns a runner sharing the binary but holding a separate session
func (r *cliRunner) another(t *testing.T) *cliRunner {
	return &cliRunner{
		binaryPath: r.binaryPath,
		serverURL:  r.serverURL,
		tokenFile:  filepath.Join(t.TempDir(), "token"),
	}
}

func (r *cliRunner) args(args ...string) []string {
	return append([]string{
		"--server", r.serverURL,
		"--token-file", r.tokenFile,
		"--output", "json",
	}, args...)
}

func (r *cliRunner) run(args ...string) (string, error) {
	cmd := exec.Command(r.binaryPath, r.args(args...)...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (r *cliRunner) runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	output, err := r.run(args...)
	require.NoError(t, err, "output: %s", output)
	require.NoError(t, json.Unmarshal([]byte(output), v), "output: %s", output)
}

func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// startTestServer serves the full API on a free local port
func startTestServer(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := factory.NewTestApp()
	server := &http.Server{Handler: app.Router()}

	go func() {
		if err := server.Serve(listener); err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	t.Cleanup(func() {
		app.Hubs.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = app.Close()
	})

	serverURL := "http://" + listener.Addr().String()
	waitForServer(t, serverURL+"/api/v1/health")
	return serverURL
}

func waitForServer(t *testing.T, url string) {
	t.Helper()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	t.Fatal("server did not become ready in time")
}

// Response types for JSON parsing
type identityResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
}

type authResponse struct {
	Identity     identityResponse `json:"identity"`
	SessionToken string           `json:"session_token"`
}

type memberResponse struct {
	IdentityID string `json:"identity_id"`
	Name       string `json:"name"`
	IsHost     bool   `json:"is_host"`
}

type roomResponse struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Capacity    int              `json:"capacity"`
	MemberCount int              `json:"member_count"`
	HostID      string           `json:"host_id"`
	Members     []memberResponse `json:"members"`
}

type messageResponse struct {
	Body   string `json:"body"`
	Type   string `json:"type"`
	Sender struct {
		Name string `json:"name"`
	} `json:"sender"`
}

func TestCLI_HealthCheck(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	var resp struct {
		Status string `json:"status"`
	}
	cli.runJSON(t, &resp, "health")
	assert.Equal(t, "ok", resp.Status)
}

func TestCLI_IdentityCommands(t *testing.T) {
	cli := newCLIRunner(t, startTestServer(t))

	var auth authResponse
	cli.runJSON(t, &auth, "identity", "register", "--user", "alice", "--pass", "password123", "--name", "Alice")
	assert.Equal(t, "Alice", auth.Identity.DisplayName)
	assert.Equal(t, "registered", auth.Identity.Kind)
	assert.NotEmpty(t, auth.SessionToken)

	// Token is read back from the token file
	var me identityResponse
	cli.runJSON(t, &me, "identity", "me")
	assert.Equal(t, auth.Identity.ID, me.ID)

	output, err := cli.run("identity", "logout")
	require.NoError(t, err, "output: %s", output)

	output, err = cli.run("identity", "me")
	assert.Error(t, err)
	assert.Contains(t, output, "UNAUTHENTICATED")

	cli.runJSON(t, &auth, "identity", "login", "--user", "alice", "--pass", "password123")
	assert.Equal(t, me.ID, auth.Identity.ID)
}

func TestCLI_RoomAndMessageFlow(t *testing.T) {
	serverURL := startTestServer(t)
	alice := newCLIRunner(t, serverURL)
	bob := alice.another(t)

	var aliceAuth, bobAuth authResponse
	alice.runJSON(t, &aliceAuth, "identity", "register", "--user", "alice", "--pass", "password123")
	bob.runJSON(t, &bobAuth, "identity", "register", "--user", "bob", "--pass", "password123")

	var room roomResponse
	alice.runJSON(t, &room, "room", "create", "--name", "Night Owls", "--capacity", "4")
	assert.Equal(t, "Night Owls", room.Name)
	assert.Equal(t, 4, room.Capacity)
	assert.Equal(t, aliceAuth.Identity.ID, room.HostID)

	var rooms struct {
		Rooms []roomResponse `json:"rooms"`
	}
	bob.runJSON(t, &rooms, "room", "list")
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, room.ID, rooms.Rooms[0].ID)

	var joined roomResponse
	bob.runJSON(t, &joined, "room", "join", room.ID)
	assert.Len(t, joined.Members, 2)

	var sent messageResponse
	bob.runJSON(t, &sent, "message", "send", room.ID, "evening", "@alice")
	assert.Equal(t, "evening @alice", sent.Body)

	var history struct {
		Messages []messageResponse `json:"messages"`
	}
	alice.runJSON(t, &history, "message", "list", room.ID)
	var normal []messageResponse
	for _, m := range history.Messages {
		if m.Type == "normal" {
			normal = append(normal, m)
		}
	}
	require.Len(t, normal, 1)
	assert.Equal(t, "bob", normal[0].Sender.Name)

	// Only the host can hand off the role
	output, err := bob.run("room", "host", room.ID, "pass", aliceAuth.Identity.ID)
	assert.Error(t, err)
	assert.Contains(t, output, "NOT_HOST")

	var passed roomResponse
	alice.runJSON(t, &passed, "room", "host", room.ID, "pass", bobAuth.Identity.ID)
	assert.Equal(t, bobAuth.Identity.ID, passed.HostID)

	output, err = alice.run("room", "leave", room.ID)
	require.NoError(t, err, "output: %s", output)

	var members struct {
		Members []memberResponse `json:"members"`
	}
	bob.runJSON(t, &members, "room", "members", room.ID)
	require.Len(t, members.Members, 1)
	assert.True(t, members.Members[0].IsHost)
}

func TestCLI_EventStream(t *testing.T) {
	serverURL := startTestServer(t)
	alice := newCLIRunner(t, serverURL)

	var room roomResponse
	alice.runJSON(t, &authResponse{}, "identity", "register", "--user", "alice", "--pass", "password123")
	alice.runJSON(t, &room, "room", "create", "--name", "Broadcast")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, alice.binaryPath, alice.args("events", room.ID)...)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	lines := bufio.NewScanner(stdout)
	nextType := func() string {
		for lines.Scan() {
			var ev struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(lines.Bytes(), &ev) == nil && ev.Type != "heartbeat" {
				return ev.Type
			}
		}
		return ""
	}

	require.Equal(t, "connected", nextType())

	output, err := alice.run("message", "send", room.ID, "live", "now")
	require.NoError(t, err, "output: %s", output)

	for {
		typ := nextType()
		require.NotEmpty(t, typ, "stream ended before the message arrived")
		if typ == "new_message" {
			break
		}
	}
}
