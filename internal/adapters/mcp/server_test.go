package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/aretw0/strata/pkg/session"
	"github.com/aretw0/strata/pkg/transform"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cloneExecutor struct {
	versions ports.VersionStoreFactory
	n        int
}

func (x *cloneExecutor) Execute(ctx context.Context, req ports.ExecRequest) (domain.VersionID, error) {
	store, err := x.versions(req.SessionID)
	if err != nil {
		return "", err
	}
	a, err := store.Load(ctx, req.Input)
	if err != nil {
		return "", domain.ErrInputNotFound
	}
	x.n++
	id := domain.VersionID(fmt.Sprintf("out-%d", x.n))
	return id, store.Store(ctx, id, a.Clone())
}

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	versions := memory.NewVersionStoreFactory()
	sessions := session.NewManager(memory.NewStore(), versions)
	return NewServer(sessions, transform.New(&cloneExecutor{versions: versions})), sessions
}

func seed(t *testing.T, sessions *session.Manager, id string) {
	t.Helper()
	ctx := context.Background()
	st, err := sessions.Stack(ctx, id)
	require.NoError(t, err)
	a, err := raster.New(raster.Uint8, 2, 2)
	require.NoError(t, err)
	require.NoError(t, st.Versions().Store(ctx, "base", a))
	require.NoError(t, st.SetImage(ctx, "base"))
}

func call(t *testing.T, s *Server, method string, params any) string {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	resp := s.MCPServer().HandleMessage(context.Background(), msg)
	out, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(out)
}

func TestTools_Listed(t *testing.T) {
	s, _ := newTestServer(t)
	out := call(t, s, "tools/list", map[string]any{})
	for _, name := range []string{"stack_state", "undo", "redo", "reset_stack", "apply_transform"} {
		assert.Contains(t, out, `"name":"`+name+`"`)
	}
}

func TestStackState_DefaultSession(t *testing.T) {
	s, _ := newTestServer(t)
	resp, err := s.handleState(context.Background(), mcp.CallToolRequest{}, SessionArgs{})
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSessionID, resp.SessionID)
	assert.False(t, resp.State.HasImage)
}

func TestTransformUndoRedoReset(t *testing.T) {
	s, sessions := newTestServer(t)
	seed(t, sessions, "s1")
	ctx := context.Background()

	tr, err := s.handleTransform(ctx, mcp.CallToolRequest{}, TransformArgs{SessionID: "s1", Op: "tile", Params: map[string]any{"tile_size": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, domain.VersionID("base"), tr.InputID)
	assert.Equal(t, domain.VersionID("out-1"), tr.OutputID)
	assert.Equal(t, 1, tr.State.Pointer)

	undo, err := s.handleUndo(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, undo.Moved)
	assert.True(t, undo.State.RedoPossible)

	undo, err = s.handleUndo(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "s1"})
	require.NoError(t, err)
	assert.False(t, undo.Moved)

	redo, err := s.handleRedo(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, redo.Moved)
	assert.Equal(t, 1, redo.State.Pointer)

	reset, err := s.handleReset(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "s1"})
	require.NoError(t, err)
	assert.True(t, reset.Moved)
	assert.False(t, reset.State.HasImage)
}

func TestApplyTransform_NoImage(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.handleTransform(context.Background(), mcp.CallToolRequest{}, TransformArgs{Op: "blur"})
	assert.ErrorIs(t, err, domain.ErrNoActiveImage)
}

func TestApplyTransform_ToolCallReportsError(t *testing.T) {
	s, _ := newTestServer(t)
	out := call(t, s, "tools/call", map[string]any{
		"name":      "apply_transform",
		"arguments": map[string]any{"op": "blur"},
	})
	assert.Contains(t, out, `"isError":true`)
	assert.Contains(t, out, domain.ErrNoActiveImage.Error())
}

func TestHistoryResource(t *testing.T) {
	s, sessions := newTestServer(t)
	seed(t, sessions, "a")
	seed(t, sessions, "b")

	histories, err := s.histories(context.Background())
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Equal(t, "a", histories[0].SessionID)
	assert.Equal(t, []domain.VersionID{"base"}, histories[0].History)
	assert.Equal(t, domain.VersionID("base"), histories[1].OriginID)

	out := call(t, s, "resources/read", map[string]any{"uri": HistoryURI})
	assert.Contains(t, out, `"uri":"strata://history"`)
	assert.Contains(t, out, `session_id`)
}
