package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hweary/cmdClient/internal/builtin"
	"github.com/Hweary/cmdClient/internal/cache"
	"github.com/Hweary/cmdClient/internal/command"
	"github.com/Hweary/cmdClient/internal/dispatch"
	"github.com/Hweary/cmdClient/internal/event"
	"github.com/Hweary/cmdClient/internal/platform"
)

func setupTestServer(t *testing.T) (*Server, *platform.Memory) {
	t.Helper()

	mem := platform.NewMemory("bot")
	mem.AddChannel("c1", "g1")

	registry := command.NewRegistry(zerolog.Nop())
	require.NoError(t, registry.AddModule(builtin.New(registry, []string{"owner"})))
	require.NoError(t, registry.Launch(context.Background()))

	contexts, err := cache.New(cache.DefaultSize, zerolog.Nop())
	require.NoError(t, err)
	d := dispatch.New(mem, registry, command.NewRunner(zerolog.Nop()), contexts, zerolog.Nop(),
		dispatch.WithPrefixes("!"),
		dispatch.WithCleanupPollInterval(5*time.Millisecond),
	)

	bus := event.NewBus(zerolog.Nop())
	t.Cleanup(func() { _ = bus.Close() })
	t.Cleanup(d.Attach(bus))

	return New(DefaultConfig(), mem, bus, d, registry, zerolog.Nop()), mem
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := setupTestServer(t)
	w := do(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostMessage_Sync(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/channels/c1/messages", PostMessageRequest{AuthorID: "u1", Content: "!ping", Sync: true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[MessageResponse](t, w)
	assert.NotEmpty(t, resp.Message.ID)
	assert.Equal(t, "g1", resp.Message.GuildID)
	require.NotNil(t, resp.Context)
	assert.Equal(t, "ping", resp.Context.Command)
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, "Pong!", resp.Replies[0].Content)
	assert.True(t, resp.Replies[0].FromBot)
}

func TestPostMessage_SyncWithoutCommand(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/channels/c1/messages", PostMessageRequest{AuthorID: "u1", Content: "hello", Sync: true})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[MessageResponse](t, w)
	assert.Nil(t, resp.Context)
	assert.Empty(t, resp.Replies)
}

func TestPostMessage_Async(t *testing.T) {
	srv, mem := setupTestServer(t)

	w := do(t, srv, "POST", "/channels/c1/messages", PostMessageRequest{AuthorID: "u1", Content: "!echo later"})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool { return len(mem.Sent("c1")) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "later", mem.Sent("c1")[0].Content)
}

func TestPostMessage_Invalid(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/channels/c1/messages", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/channels/c1/messages", PostMessageRequest{Content: "!ping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeInvalidRequest, decode[ErrorResponse](t, w).Error.Code)
}

func TestEditMessage_Sync(t *testing.T) {
	srv, _ := setupTestServer(t)

	posted := decode[MessageResponse](t, do(t, srv, "POST", "/channels/c1/messages",
		PostMessageRequest{AuthorID: "u1", Content: "!echo one", Sync: true}))

	w := do(t, srv, "PATCH", "/channels/c1/messages/"+posted.Message.ID, EditMessageRequest{Content: "!echo two", Sync: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	edited := decode[MessageResponse](t, w)
	assert.NotNil(t, edited.Message.EditedAt)
	require.Len(t, edited.Replies, 1)
	assert.Equal(t, "two", edited.Replies[0].Content)

	messages := decode[[]platform.StoredMessage](t, do(t, srv, "GET", "/channels/c1/messages", nil))
	require.Len(t, messages, 3)
	assert.Equal(t, "!echo two", messages[0].Content)
	assert.True(t, messages[1].Deleted)
	assert.Equal(t, "two", messages[2].Content)
}

func TestEditMessage_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "PATCH", "/channels/c1/messages/missing", EditMessageRequest{Content: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChannels(t *testing.T) {
	srv, mem := setupTestServer(t)

	w := do(t, srv, "PUT", "/channels/bulk", ChannelRequest{GuildID: "g2", ManageMessages: true})
	require.Equal(t, http.StatusOK, w.Code)

	ok, err := mem.CanManageMessages(context.Background(), "bulk")
	require.NoError(t, err)
	assert.True(t, ok)

	channels := decode[[]string](t, do(t, srv, "GET", "/channels", nil))
	assert.Equal(t, []string{"bulk", "c1"}, channels)

	messages := decode[[]platform.StoredMessage](t, do(t, srv, "GET", "/channels/nowhere/messages", nil))
	assert.Empty(t, messages)
}

func TestInvoke(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, "POST", "/invoke", InvokeRequest{ChannelID: "c1", AuthorID: "u1", Text: "echo hi --times 2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[InvokeResponse](t, w)
	assert.Equal(t, "echo", resp.Command)
	assert.Equal(t, "completed", resp.Outcome)
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, "hi hi", resp.Replies[0].Content)

	w = do(t, srv, "POST", "/invoke", InvokeRequest{ChannelID: "c1", Text: "nothing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, "POST", "/invoke", InvokeRequest{Text: "ping"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListCommands(t *testing.T) {
	srv, _ := setupTestServer(t)

	names := func(w *httptest.ResponseRecorder) []string {
		var out []string
		for _, c := range decode[[]map[string]any](t, w) {
			assert.Equal(t, builtin.ModuleName, c["module"])
			out = append(out, c["name"].(string))
		}
		return out
	}

	assert.ElementsMatch(t, []string{"help", "ping", "echo"}, names(do(t, srv, "GET", "/commands", nil)))
	assert.ElementsMatch(t, []string{"help", "ping", "echo", "modules"}, names(do(t, srv, "GET", "/commands?hidden=true", nil)))
}

func TestModules(t *testing.T) {
	srv, _ := setupTestServer(t)

	modules := decode[[]ModuleInfo](t, do(t, srv, "GET", "/modules", nil))
	require.Len(t, modules, 1)
	assert.True(t, modules[0].Enabled)
	assert.True(t, modules[0].Ready)
	assert.Contains(t, modules[0].Commands, "ping")

	w := do(t, srv, "PATCH", "/modules/"+builtin.ModuleName, UpdateModuleRequest{Enabled: false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]map[string]any](t, do(t, srv, "GET", "/commands", nil)))

	w = do(t, srv, "PATCH", "/modules/nope", UpdateModuleRequest{Enabled: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetContext(t *testing.T) {
	srv, _ := setupTestServer(t)

	posted := decode[MessageResponse](t, do(t, srv, "POST", "/channels/c1/messages",
		PostMessageRequest{AuthorID: "u1", Content: "!echo ctx", Sync: true}))

	w := do(t, srv, "GET", "/contexts/"+posted.Message.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ctx := decode[ContextResponse](t, w)
	assert.Equal(t, "echo", ctx.Snapshot.Command)
	assert.Equal(t, "ctx", ctx.Snapshot.ArgStr)
	assert.False(t, ctx.Running)
	assert.Len(t, ctx.Snapshot.Responses, 1)

	w = do(t, srv, "GET", "/contexts/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
