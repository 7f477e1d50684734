package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-topo/internal/db"
	"go-topo/internal/metrics"
	"go-topo/internal/models"
	"go-topo/internal/poller"
	"go-topo/internal/topology"
)

type fakeDiscoverer struct {
	latest *poller.Snapshot
	next   *poller.Snapshot
	err    error
	runs   int
}

func (f *fakeDiscoverer) Latest() *poller.Snapshot { return f.latest }

func (f *fakeDiscoverer) RunOnce(ctx context.Context) (*poller.Snapshot, error) {
	f.runs++
	if f.err != nil {
		return nil, f.err
	}
	f.latest = f.next
	return f.next, nil
}

func snapshot(t *testing.T, policy topology.EdgePolicy) *poller.Snapshot {
	t.Helper()
	res, err := topology.NewBuilder(topology.Options{Policy: policy}).Build([]topology.DeviceInput{
		{Identity: "R1", Category: "ISR4331B", Neighbors: []topology.NeighborRecord{
			{Neighbor: "SW1", LocalInterface: "Gi0/1", NeighborInterface: "Gi1/0/1"},
			{Neighbor: "SW1", LocalInterface: "Gi0/2", NeighborInterface: "Gi1/0/2"},
		}},
		{Identity: "SW1", Category: "WS-C3650", Neighbors: []topology.NeighborRecord{
			{Neighbor: "R1", LocalInterface: "Gi1/0/1", NeighborInterface: "Gi0/1"},
		}},
	})
	require.NoError(t, err)
	return &poller.Snapshot{Graph: res.Graph, Warnings: res.Warnings, Failed: []string{"SW9"}}
}

func newApp(t *testing.T, d *fakeDiscoverer) (*fiber.App, *db.Store) {
	t.Helper()

	store, err := db.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	app := fiber.New(fiber.Config{Views: NewEngine("./templates")})
	SetupRoutes(app, &Handlers{Inventory: store, Discoverer: d, Macs: store, Metrics: m})
	return app, store
}

func decode(t *testing.T, resp *http.Response) topologyView {
	t.Helper()
	var v topologyView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestTopologyAPI(t *testing.T) {
	app, _ := newApp(t, &fakeDiscoverer{latest: snapshot(t, topology.DedupByInterfacePair)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/topology", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	v := decode(t, resp)
	assert.False(t, v.Empty)
	assert.Equal(t, []nodeView{
		{ID: "r1", Label: "r1", Category: "router", Source: "inventory"},
		{ID: "sw1", Label: "sw1", Category: "aswitch", Source: "inventory"},
	}, v.Nodes)
	require.Len(t, v.Edges, 1)
	assert.Equal(t, "r1", v.Edges[0].From)
	assert.Equal(t, "sw1", v.Edges[0].To)
	assert.Equal(t, "Gi0/1, Gi0/2 - Gi1/0/1, Gi1/0/2", v.Edges[0].Label)
	assert.Equal(t, []string{"SW9"}, v.Failed)
}

func TestTopologyAPI_GroupsMultigraph(t *testing.T) {
	app, _ := newApp(t, &fakeDiscoverer{latest: snapshot(t, topology.NoDedup)})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/topology", nil))
	require.NoError(t, err)

	v := decode(t, resp)
	require.Len(t, v.Edges, 1)
	assert.Equal(t, "Gi0/1, Gi0/2 - Gi1/0/1, Gi1/0/2", v.Edges[0].Label)
}

func TestTopologyAPI_Empty(t *testing.T) {
	app, _ := newApp(t, &fakeDiscoverer{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/topology", nil))
	require.NoError(t, err)

	v := decode(t, resp)
	assert.True(t, v.Empty)
	assert.Equal(t, emptyMessage, v.Message)
	assert.NotNil(t, v.Nodes)
	assert.NotNil(t, v.Edges)
}

func TestIndexPage(t *testing.T) {
	app, _ := newApp(t, &fakeDiscoverer{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), emptyMessage)

	app, _ = newApp(t, &fakeDiscoverer{latest: snapshot(t, topology.DedupByInterfacePair)})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `id="topology"`)
	assert.Contains(t, string(body), "2 devices, 1 links")
	assert.Contains(t, string(body), "SW9")
}

func TestDiscover(t *testing.T) {
	d := &fakeDiscoverer{next: snapshot(t, topology.DedupByInterfacePair)}
	app, _ := newApp(t, d)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/discover", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, d.runs)
	assert.Len(t, decode(t, resp).Nodes, 2)

	d.err = errors.New("store unavailable")
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/discover", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func postForm(t *testing.T, app *fiber.App, path string, form url.Values) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAdminAddAndDelete(t *testing.T) {
	app, store := newApp(t, &fakeDiscoverer{})

	resp := postForm(t, app, "/admin/add", url.Values{
		"hostname": {"r1"}, "ip": {"10.0.0.1"}, "platform": {"iosxe"}, "model": {"ISR4331B"}, "transport": {"ssh"},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	devices, err := store.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "ISR4331B", devices[0].Model)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "10.0.0.1")

	resp = postForm(t, app, "/admin/delete/"+itoa(devices[0].ID), nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	devices, err = store.ListDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestAdminAdd_Invalid(t *testing.T) {
	app, store := newApp(t, &fakeDiscoverer{})

	resp := postForm(t, app, "/admin/add", url.Values{"hostname": {"r1"}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/admin?error="))

	devices, err := store.ListDevices()
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestAdminAdd_DuplicateHostname(t *testing.T) {
	app, store := newApp(t, &fakeDiscoverer{})

	form := url.Values{"hostname": {"r1"}, "ip": {"10.0.0.1"}}
	resp := postForm(t, app, "/admin/add", form)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin", resp.Header.Get("Location"))

	resp = postForm(t, app, "/admin/add", form)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Location"), "/admin?error="))
	assert.Contains(t, resp.Header.Get("Location"), url.QueryEscape("already exists"))

	devices, err := store.ListDevices()
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestMacSearch(t *testing.T) {
	app, store := newApp(t, &fakeDiscoverer{})

	sw := models.Device{Hostname: "sw1", IPAddress: "10.0.0.2", Transport: "snmp"}
	require.NoError(t, store.CreateDevice(&sw))
	require.NoError(t, store.ReplaceMacEntries(sw.ID, []models.MacEntry{
		{MAC: "00:11:22:33:44:55", Interface: "Gi1/0/3", VLAN: 20, Type: "dynamic"},
	}, time.Now()))

	resp := postForm(t, app, "/mac", url.Values{"mac": {"0011.2233.4455"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "00:11:22:33:44:55")
	assert.Contains(t, string(body), "Gi1/0/3")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/mac?mac=ff:ff", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "No entries match")

	resp = postForm(t, app, "/mac", url.Values{"mac": {""}})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/mac", resp.Header.Get("Location"))
}

func TestAdminDelete_BadID(t *testing.T) {
	app, _ := newApp(t, &fakeDiscoverer{})

	resp := postForm(t, app, "/admin/delete/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminImport(t *testing.T) {
	app, store := newApp(t, &fakeDiscoverer{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "inventory.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("ip_address,hostname,platform,type\n10.0.0.1,r1,iosxe,ISR4331B\n,missing,iosxe,x\n10.0.0.2,sw1,iosxe,WS-C3650\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), url.QueryEscape("2 added, 0 updated, 1 skipped"))

	devices, err := store.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, []string{"r1", "sw1"}, []string{devices[0].Hostname, devices[1].Hostname})
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newApp(t, &fakeDiscoverer{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "topology_discovery_runs_total")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

var (
	_ Inventory   = (*db.Store)(nil)
	_ MacSearcher = (*db.Store)(nil)
)
