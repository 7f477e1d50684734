package web

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"go-topo/internal/category"
	"go-topo/internal/db"
	"go-topo/internal/inventory"
	"go-topo/internal/metrics"
	"go-topo/internal/models"
	"go-topo/internal/poller"
	"go-topo/internal/topology"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/template/html/v2"
)

const emptyMessage = "Network topology graph has no nodes to visualize!"

// Inventory is the device storage behind the admin pages.
type Inventory interface {
	ListDevices() ([]models.Device, error)
	CreateDevice(d *models.Device) error
	DeleteDevice(id uint) error
	ImportDevices(devices []models.Device) (created, updated int, err error)
}

// MacSearcher looks up stored MAC table entries.
type MacSearcher interface {
	SearchMacs(query string) ([]db.MacResult, error)
}

// Discoverer runs discovery and holds the latest graph.
type Discoverer interface {
	Latest() *poller.Snapshot
	RunOnce(ctx context.Context) (*poller.Snapshot, error)
}

type Handlers struct {
	Inventory  Inventory
	Discoverer Discoverer
	Macs       MacSearcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// NewEngine loads the html templates from dir.
func NewEngine(dir string) *html.Engine {
	engine := html.New(dir, ".html")
	engine.AddFunc("ms", func(d time.Duration) string { return d.Round(time.Millisecond).String() })
	return engine
}

type nodeView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

type edgeView struct {
	From  string                   `json:"from"`
	To    string                   `json:"to"`
	Label string                   `json:"label"`
	Pairs []topology.InterfacePair `json:"pairs"`
}

type topologyView struct {
	Nodes    []nodeView `json:"nodes"`
	Edges    []edgeView `json:"edges"`
	Empty    bool       `json:"empty"`
	Message  string     `json:"message,omitempty"`
	Warnings int        `json:"warnings"`
	Failed   []string   `json:"failed"`
}

func viewOf(snap *poller.Snapshot) topologyView {
	v := topologyView{Nodes: []nodeView{}, Edges: []edgeView{}, Failed: []string{}}
	if snap == nil || snap.Graph == nil || snap.Graph.Empty() {
		v.Empty = true
		v.Message = emptyMessage
		if snap != nil && snap.Failed != nil {
			v.Failed = snap.Failed
		}
		return v
	}

	for _, n := range snap.Graph.Nodes() {
		v.Nodes = append(v.Nodes, nodeView{
			ID:       n.ID,
			Label:    n.ID,
			Category: string(n.Category),
			Source:   string(n.Source),
		})
	}
	for _, e := range snap.Graph.Links() {
		v.Edges = append(v.Edges, edgeView{From: e.A, To: e.B, Label: e.Label(), Pairs: e.Pairs})
	}
	v.Warnings = len(snap.Warnings)
	if snap.Failed != nil {
		v.Failed = snap.Failed
	}
	return v
}

func SetupRoutes(app *fiber.App, h *Handlers) {
	if h.Logger == nil {
		h.Logger = slog.New(slog.DiscardHandler)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		snap := h.Discoverer.Latest()
		view := viewOf(snap)
		data := fiber.Map{
			"Empty":      view.Empty,
			"Message":    view.Message,
			"Nodes":      len(view.Nodes),
			"Edges":      len(view.Edges),
			"Failed":     view.Failed,
			"Warnings":   view.Warnings,
			"Categories": []category.Category{category.Router, category.AccessSwitch, category.CoreSwitch},
		}
		if snap != nil {
			data["Run"] = snap.Run
		}
		return c.Render("index", data)
	})

	app.Get("/api/topology", func(c *fiber.Ctx) error {
		return c.JSON(viewOf(h.Discoverer.Latest()))
	})

	// Run one discovery now
	app.Post("/api/discover", func(c *fiber.Ctx) error {
		snap, err := h.Discoverer.RunOnce(c.UserContext())
		if err != nil {
			h.Logger.Error("manual discovery failed", "err", err)
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(viewOf(snap))
	})

	// MAC search page (GET displays form, POST performs search)
	app.Get("/mac", func(c *fiber.Ctx) error {
		return h.renderMacs(c, c.Query("mac"))
	})

	app.Post("/mac", func(c *fiber.Ctx) error {
		query := c.FormValue("mac")
		if query == "" {
			return c.Redirect("/mac")
		}
		return h.renderMacs(c, query)
	})

	// Admin form
	app.Get("/admin", func(c *fiber.Ctx) error {
		devices, err := h.Inventory.ListDevices()
		if err != nil {
			return err
		}
		return c.Render("admin", fiber.Map{
			"Devices": devices,
			"Error":   c.Query("error"),
			"Notice":  c.Query("notice"),
		})
	})

	// Handle form submit
	app.Post("/admin/add", func(c *fiber.Ctx) error {
		d := models.Device{
			Hostname:  c.FormValue("hostname"),
			IPAddress: c.FormValue("ip"),
			Platform:  c.FormValue("platform"),
			Model:     c.FormValue("model"),
			Transport: c.FormValue("transport"),
			Community: c.FormValue("community"),
			Site:      c.FormValue("site"),
		}
		if err := h.Inventory.CreateDevice(&d); err != nil {
			if errors.Is(err, db.ErrInvalidDevice) || errors.Is(err, db.ErrDuplicateDevice) {
				return c.Redirect("/admin?error=" + url.QueryEscape(err.Error()))
			}
			return err
		}
		return c.Redirect("/admin")
	})

	// Import an inventory CSV
	app.Post("/admin/import", func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return c.Redirect("/admin?error=" + url.QueryEscape("no file uploaded"))
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer f.Close()

		devices, skipped, err := inventory.Parse(f)
		if err != nil {
			return c.Redirect("/admin?error=" + url.QueryEscape(err.Error()))
		}
		for _, s := range skipped {
			h.Logger.Warn("inventory row skipped", "file", fh.Filename, "line", s.Line, "reason", s.Reason)
		}
		created, updated, err := h.Inventory.ImportDevices(devices)
		if err != nil {
			return c.Redirect("/admin?error=" + url.QueryEscape(err.Error()))
		}
		notice := strconv.Itoa(created) + " added, " + strconv.Itoa(updated) + " updated, " +
			strconv.Itoa(len(skipped)) + " skipped"
		return c.Redirect("/admin?notice=" + url.QueryEscape(notice))
	})

	// Delete a device
	app.Post("/admin/delete/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid device id")
		}
		if err := h.Inventory.DeleteDevice(uint(id)); err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		return c.Redirect("/admin")
	})

	app.Get("/metrics", adaptor.HTTPHandler(h.Metrics.Handler()))
}

func (h *Handlers) renderMacs(c *fiber.Ctx, query string) error {
	data := fiber.Map{"Query": query, "Results": nil}
	if query != "" && h.Macs != nil {
		results, err := h.Macs.SearchMacs(query)
		if err != nil {
			return err
		}
		data["Results"] = results
	}
	return c.Render("mac", data)
}
