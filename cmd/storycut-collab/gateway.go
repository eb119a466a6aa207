// Package main provides the Storycut collaboration gateway: it hosts
// document rooms and serves join/publish/poll over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/moogar0880/problems"
	"github.com/storycut/storycut/pkg/collab"
	"github.com/storycut/storycut/pkg/eventbus"
	"github.com/storycut/storycut/pkg/events"
	"github.com/storycut/storycut/pkg/models"
)

// relay drains one hub session into a poll buffer. Clients fetch and
// clear the buffer through the inbox endpoint.
type relay struct {
	session *collab.Session

	mu     sync.Mutex
	events []models.BroadcastEvent
	resync bool
	closed bool
}

func (r *relay) drain() {
	for {
		select {
		case event, ok := <-r.session.Events():
			if !ok {
				r.mu.Lock()
				r.closed = true
				r.mu.Unlock()

				return
			}

			r.mu.Lock()
			r.events = append(r.events, event)
			r.mu.Unlock()
		case <-r.session.Resync():
			r.mu.Lock()
			r.resync = true
			r.mu.Unlock()

			return
		}
	}
}

// take returns buffered events and clears the buffer.
func (r *relay) take() ([]models.BroadcastEvent, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := r.events
	r.events = nil

	return taken, r.resync, r.closed
}

type Gateway struct {
	logger *slog.Logger
	hub    *collab.Hub
	bus    eventbus.EventPublisher

	mu     sync.Mutex
	relays map[string]*relay
}

func NewGateway(logger *slog.Logger, hub *collab.Hub, bus eventbus.EventPublisher) *Gateway {
	return &Gateway{
		logger: logger,
		hub:    hub,
		bus:    bus,
		relays: make(map[string]*relay),
	}
}

type joinRequest struct {
	ClientID string `json:"client_id"`
	SinceSeq uint64 `json:"since_seq"`
}

type publishRequest struct {
	ClientID string          `json:"client_id"`
	Payload  json.RawMessage `json:"payload"`
}

type ackRequest struct {
	ClientID string `json:"client_id"`
	Seq      uint64 `json:"seq"`
}

type leaveRequest struct {
	ClientID string `json:"client_id"`
}

func (g *Gateway) relayKey(documentID, clientID string) string {
	return documentID + "/" + clientID
}

func (g *Gateway) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	docs := app.Group("/documents")
	docs.Post("/:id/join", g.Join)
	docs.Post("/:id/events", g.Publish)
	docs.Get("/:id/inbox", g.Inbox)
	docs.Post("/:id/ack", g.Ack)
	docs.Post("/:id/leave", g.Leave)
	docs.Get("/:id/sessions", g.Sessions)

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	return app
}

func (g *Gateway) Join(c fiber.Ctx) error {
	documentID := c.Params("id")

	var req joinRequest
	if err := c.Bind().JSON(&req); err != nil {
		return gatewayBadRequest(c, "Invalid JSON format")
	}

	if req.ClientID == "" {
		return gatewayBadRequest(c, "client_id is required")
	}

	result, err := g.hub.Join(c.Context(), documentID, req.ClientID, req.SinceSeq)
	if err != nil {
		return gatewayError(c, err)
	}

	r := &relay{session: result.Session}
	go r.drain()

	g.mu.Lock()
	g.relays[g.relayKey(documentID, req.ClientID)] = r
	g.mu.Unlock()

	response := fiber.Map{
		"session": result.Session.Membership(),
		"backlog": result.Backlog,
	}
	if result.Snapshot != nil {
		response["snapshot"] = result.Snapshot
	}

	return c.JSON(response)
}

func (g *Gateway) Publish(c fiber.Ctx) error {
	documentID := c.Params("id")

	var req publishRequest
	if err := c.Bind().JSON(&req); err != nil {
		return gatewayBadRequest(c, "Invalid JSON format")
	}

	if req.ClientID == "" {
		return gatewayBadRequest(c, "client_id is required")
	}

	event, err := g.hub.Publish(c.Context(), documentID, req.ClientID, req.Payload)
	if err != nil {
		return gatewayError(c, err)
	}

	g.mirrorToBus(c.Context(), event)

	return c.Status(fiber.StatusCreated).JSON(event)
}

// mirrorToBus republishes a room broadcast as a lifecycle event so
// detached observers see edit activity. Best-effort.
func (g *Gateway) mirrorToBus(ctx context.Context, event models.BroadcastEvent) {
	if g.bus == nil {
		return
	}

	busEvent := events.DocumentEdited{
		BaseEvent:  events.NewBaseEvent(events.DocumentEditedEvent, ""),
		DocumentID: event.DocumentID,
		ClientID:   event.ClientID,
		Seq:        event.Seq,
		Payload:    event.Payload,
	}

	if err := g.bus.Publish(ctx, event.DocumentID, busEvent); err != nil {
		g.logger.WarnContext(ctx, "Failed to mirror edit onto event bus",
			"document_id", event.DocumentID, "error", err)
	}
}

func (g *Gateway) Inbox(c fiber.Ctx) error {
	documentID := c.Params("id")

	clientID := c.Query("client_id")
	if clientID == "" {
		return gatewayBadRequest(c, "client_id is required")
	}

	g.mu.Lock()
	r := g.relays[g.relayKey(documentID, clientID)]
	g.mu.Unlock()

	if r == nil {
		return gatewayError(c, collab.ErrSessionNotFound)
	}

	buffered, resync, closed := r.take()

	return c.JSON(fiber.Map{
		"events": buffered,
		"resync": resync,
		"closed": closed,
	})
}

func (g *Gateway) Ack(c fiber.Ctx) error {
	documentID := c.Params("id")

	var req ackRequest
	if err := c.Bind().JSON(&req); err != nil {
		return gatewayBadRequest(c, "Invalid JSON format")
	}

	g.mu.Lock()
	r := g.relays[g.relayKey(documentID, req.ClientID)]
	g.mu.Unlock()

	if r == nil {
		return gatewayError(c, collab.ErrSessionNotFound)
	}

	r.session.Ack(req.Seq)

	return c.SendStatus(fiber.StatusNoContent)
}

func (g *Gateway) Leave(c fiber.Ctx) error {
	documentID := c.Params("id")

	var req leaveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return gatewayBadRequest(c, "Invalid JSON format")
	}

	if err := g.hub.Leave(c.Context(), documentID, req.ClientID); err != nil {
		return gatewayError(c, err)
	}

	g.mu.Lock()
	delete(g.relays, g.relayKey(documentID, req.ClientID))
	g.mu.Unlock()

	return c.SendStatus(fiber.StatusNoContent)
}

func (g *Gateway) Sessions(c fiber.Ctx) error {
	documentID := c.Params("id")

	return c.JSON(fiber.Map{"sessions": g.hub.Sessions(documentID)})
}

func (g *Gateway) Start(port int) error {
	return g.App().Listen(":" + strconv.Itoa(port))
}

func gatewayBadRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func gatewayError(c fiber.Ctx, err error) error {
	switch {
	case collab.IsSessionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("session_not_found").
			WithDetail("no session for this client")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case collab.IsRoomClosed(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("room_closed").
			WithDetail("the document room is closed")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case collab.IsSeqAhead(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("sequence_ahead").
			WithDetail("client sequence is ahead of the room; rejoin from a snapshot")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case errors.Is(err, collab.ErrSnapshotRequired):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("snapshot_required").
			WithDetail("requested history fell out of the retained window and no snapshot exists")

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
