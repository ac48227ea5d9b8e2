package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gravitas-games/gridstash/internal/authority"
	"github.com/gravitas-games/gridstash/internal/config"
	"github.com/gravitas-games/gridstash/internal/metrics"
	"github.com/gravitas-games/gridstash/internal/network"
	"github.com/gravitas-games/gridstash/internal/store"
	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/gravitas-games/gridstash/pkg/models"
)

type fakeValidator map[string]*models.Player

func (f fakeValidator) ValidateToken(_ context.Context, token string) (*models.Player, error) {
	p, ok := f[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	cp := *p
	return &cp, nil
}

var testPlayers = fakeValidator{
	"admin":   {ID: "1", Username: "quartermaster", Permissions: models.PermItemAdmin | models.PermCrateAccess, Activated: 1},
	"scout":   {ID: "2", Username: "scout", Permissions: models.PermCrateAccess, Activated: 1},
	"recruit": {ID: "3", Username: "recruit", Activated: 1},
}

type harness struct {
	srv   *Server
	http  *httptest.Server
	store store.Store
}

func newHarness(t *testing.T, opts ...authority.Option) *harness {
	t.Helper()
	cfg, err := config.Parse([]byte("server:\n  max_players: 10\n"))
	require.NoError(t, err)

	st, err := store.NewFileStore(t.TempDir(), store.FormatJSON)
	require.NoError(t, err)

	m := metrics.New("test")
	registry := prometheus.NewRegistry()
	require.NoError(t, m.Register(registry))

	svc := authority.New(inventory.SampleCatalog(),
		append([]authority.Option{authority.WithStore(st), authority.WithMetrics(m)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	srv := newServer(ctx, cancel, cfg, zap.NewNop(), svc, testPlayers, m, registry)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown()
		ts.Close()
	})
	return &harness{srv: srv, http: ts, store: st}
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (h *harness) dial(t *testing.T, token string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(typ string, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// expect reads messages until one of type typ arrives and decodes its
// payload into v.
func (c *client) expect(typ string, v any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg received
		require.NoError(c.t, c.ws.ReadJSON(&msg), "waiting for %s", typ)
		if msg.Type != typ {
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(msg.Payload, v))
		}
		return
	}
}

func (c *client) join() network.WelcomePayload {
	c.t.Helper()
	c.send(network.MsgTypeJoin, nil)
	var welcome network.WelcomePayload
	c.expect(network.MsgTypeWelcome, &welcome)
	c.expect(network.MsgTypeInventoryState, nil)
	return welcome
}

func TestRejectsUnauthenticated(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer forged"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinSendsWelcomeAndState(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, "scout")

	c.send(network.MsgTypeJoin, nil)
	var welcome network.WelcomePayload
	c.expect(network.MsgTypeWelcome, &welcome)
	assert.Equal(t, "2", welcome.PlayerID)
	assert.Equal(t, inventory.OwnerID("player:2"), welcome.Owner)
	assert.True(t, welcome.Authoritative)
	assert.Equal(t, 1, welcome.SessionStatus.PlayerCount)

	var state network.InventoryStatePayload
	c.expect(network.MsgTypeInventoryState, &state)
	assert.Equal(t, inventory.OwnerID("player:2"), state.Owner)
	require.Len(t, state.Containers, 3)
	assert.Equal(t, "backpack", state.Containers[0].Name)
	assert.Equal(t, 6, state.Containers[0].Width)
	assert.Empty(t, state.Containers[0].Items)
}

func TestRequiresJoin(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, "scout")

	c.send(network.MsgTypeItemMove, authority.MoveRequest{FromContainer: "backpack", ToContainer: "backpack"})
	var e network.ErrorPayload
	c.expect(network.MsgTypeError, &e)
	assert.Equal(t, "not_joined", e.Code)

	c.send("teleport", nil)
	c.expect(network.MsgTypeError, &e)
	assert.Equal(t, "unknown_message_type", e.Code)
}

func TestPlaceMoveRemove(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, "admin")
	c.join()

	c.send(network.MsgTypeItemPlace, authority.PlaceRequest{
		RequestID:    "r1",
		Container:    "backpack",
		DefinitionID: inventory.SampleMedkit,
		Auto:         true,
	})
	var placed authority.Response
	c.expect(network.MsgTypePlaceResult, &placed)
	require.True(t, placed.OK, placed.Message)
	assert.Equal(t, "r1", placed.RequestID)
	require.NotNil(t, placed.Placement)
	assert.Equal(t, 0, placed.Placement.X)
	assert.Equal(t, 0, placed.Placement.Y)

	var changed network.ItemChangedPayload
	c.expect(network.MsgTypeItemPlaced, &changed)
	assert.Equal(t, placed.Placement.InstanceID, changed.Item.InstanceID)

	c.send(network.MsgTypeItemMove, authority.MoveRequest{
		RequestID:     "r2",
		FromContainer: "backpack",
		FromX:         1,
		FromY:         1,
		ToContainer:   "pocket_left",
		Rotation:      inventory.Rotation0,
	})
	var moved authority.Response
	c.expect(network.MsgTypeMoveResult, &moved)
	require.True(t, moved.OK, moved.Message)
	assert.Equal(t, "pocket_left", moved.Placement.Container)
	assert.Equal(t, placed.Placement.InstanceID, moved.Placement.InstanceID)
	require.NotNil(t, moved.From)
	assert.Equal(t, "backpack", moved.From.Container)
	c.expect(network.MsgTypeItemMoved, &changed)
	assert.Equal(t, "pocket_left", changed.Item.Container)

	// the pocket is full now
	c.send(network.MsgTypeItemPlace, authority.PlaceRequest{
		Container:    "pocket_left",
		DefinitionID: inventory.SampleRadio,
		Auto:         true,
	})
	var rejected authority.Response
	c.expect(network.MsgTypePlaceResult, &rejected)
	assert.False(t, rejected.OK)
	assert.Equal(t, authority.CodeInsufficientSpace, rejected.Code)

	c.send(network.MsgTypeItemRemove, authority.RemoveRequest{RequestID: "r3", Container: "pocket_left", X: 1, Y: 0})
	var removed authority.Response
	c.expect(network.MsgTypeRemoveResult, &removed)
	require.True(t, removed.OK, removed.Message)
	assert.Equal(t, placed.Placement.InstanceID, removed.Placement.InstanceID)
	c.expect(network.MsgTypeItemRemoved, nil)
}

func TestPermissions(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, "recruit")
	c.join()

	var e network.ErrorPayload
	c.send(network.MsgTypeItemPlace, authority.PlaceRequest{DefinitionID: inventory.SampleRadio, Auto: true})
	c.expect(network.MsgTypeError, &e)
	assert.Equal(t, "forbidden", e.Code)

	c.send(network.MsgTypeInventoryGet, network.InventoryGetPayload{Owner: "player:1"})
	c.expect(network.MsgTypeError, &e)
	assert.Equal(t, "forbidden", e.Code)

	c.send(network.MsgTypeInventoryGet, network.InventoryGetPayload{Owner: "crate:depot"})
	c.expect(network.MsgTypeError, &e)
	assert.Equal(t, "forbidden", e.Code)

	c.send(network.MsgTypeItemMove, authority.MoveRequest{
		FromContainer: "backpack",
		ToOwner:       "crate:depot",
		ToContainer:   "storage",
	})
	c.expect(network.MsgTypeError, &e)
	assert.Equal(t, "forbidden", e.Code)
}

func TestCrateWatchersSeeChanges(t *testing.T) {
	h := newHarness(t)
	admin := h.dial(t, "admin")
	admin.join()
	scout := h.dial(t, "scout")
	scout.join()

	const crate = inventory.OwnerID("crate:depot")
	var state network.InventoryStatePayload
	scout.send(network.MsgTypeInventoryGet, network.InventoryGetPayload{Owner: crate})
	scout.expect(network.MsgTypeInventoryState, &state)
	require.Len(t, state.Containers, 1)
	assert.Equal(t, "storage", state.Containers[0].Name)
	assert.Equal(t, 8, state.Containers[0].Width)

	admin.send(network.MsgTypeItemPlace, authority.PlaceRequest{
		Owner:        crate,
		Container:    "storage",
		DefinitionID: inventory.SampleToolkit,
		X:            2,
		Y:            3,
	})
	var resp authority.Response
	admin.expect(network.MsgTypePlaceResult, &resp)
	require.True(t, resp.OK, resp.Message)

	var changed network.ItemChangedPayload
	scout.expect(network.MsgTypeItemPlaced, &changed)
	assert.Equal(t, crate, changed.Item.Owner)
	assert.Equal(t, 2, changed.Item.X)
	assert.Equal(t, 3, changed.Item.Y)

	// scout loots it into its own backpack
	scout.send(network.MsgTypeItemMove, authority.MoveRequest{
		FromOwner:     crate,
		FromContainer: "storage",
		FromX:         4,
		FromY:         4,
		ToOwner:       "player:2",
		ToContainer:   "backpack",
	})
	scout.expect(network.MsgTypeMoveResult, &resp)
	require.True(t, resp.OK, resp.Message)
	assert.Equal(t, inventory.OwnerID("player:2"), resp.Placement.Owner)
	scout.expect(network.MsgTypeItemMoved, &changed)
}

func TestLeaveSavesInventory(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, "admin")
	c.join()

	c.send(network.MsgTypeItemPlace, authority.PlaceRequest{Container: "pocket_right", DefinitionID: inventory.SampleAmmoBox, Auto: true})
	var resp authority.Response
	c.expect(network.MsgTypePlaceResult, &resp)
	require.True(t, resp.OK, resp.Message)
	c.send(network.MsgTypeLeave, nil)

	require.Eventually(t, func() bool {
		snap, err := h.store.Load(context.Background(), "player:1", "pocket_right")
		return err == nil && len(snap.Items) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Empty(t, h.srv.inventory.Owners())
}

func TestReplicaRefusesMutations(t *testing.T) {
	h := newHarness(t, authority.AsReplica())
	c := h.dial(t, "scout")
	welcome := c.join()
	assert.False(t, welcome.Authoritative)

	c.send(network.MsgTypeItemMove, authority.MoveRequest{FromContainer: "backpack", ToContainer: "pocket_right"})
	var resp authority.Response
	c.expect(network.MsgTypeMoveResult, &resp)
	assert.False(t, resp.OK)
	assert.Equal(t, authority.CodeNotAuthority, resp.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	c := h.dial(t, "scout")
	c.join()

	resp, err := http.Get(h.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status  string                `json:"status"`
		Session network.SessionStatus `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Session.PlayerCount)
	assert.Equal(t, 1, health.Session.OpenOwners)

	resp, err = http.Get(h.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_websocket_connections 1")
	assert.Contains(t, string(body), "test_inventory_open_owners 1")
}
