// Package gateway exposes the vesting engine over HTTP and streams vesting
// events to WebSocket subscribers. It is a thin surface: every rule lives in
// the engine, the gateway only translates transports and error codes.
package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/vestcore/internal/auth"
	"github.com/terminal-bench/vestcore/internal/vesting"
	"github.com/terminal-bench/vestcore/pkg/messaging"
)

const actorKey = "actor"

// Gateway routes HTTP calls into the engine.
type Gateway struct {
	router *gin.Engine
	engine *vesting.Engine
	auth   *auth.Service
	events *messaging.Client // nil when running without a broker

	upgrader websocket.Upgrader

	wsMu      sync.RWMutex
	wsClients map[uuid.UUID]chan []byte
}

// New builds a gateway around engine. events may be nil; the /ws feed then
// reports unavailable.
func New(engine *vesting.Engine, authSvc *auth.Service, events *messaging.Client) *Gateway {
	g := &Gateway{
		router:    gin.Default(),
		engine:    engine,
		auth:      authSvc,
		events:    events,
		wsClients: make(map[uuid.UUID]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	g.setupRoutes()
	if events != nil {
		// Relay every vesting event to connected WebSocket clients.
		events.Subscribe("vesting.>", func(topic string, data []byte) {
			g.broadcast(data)
		})
	}
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := g.router.Group("/api/v1")
	{
		v1.POST("/init", g.initialize)

		v1.POST("/pause", g.authMiddleware(), g.pause)
		v1.POST("/resume", g.authMiddleware(), g.resume)
		v1.POST("/attesters", g.authMiddleware(), g.registerAttester)
		v1.DELETE("/attesters/:id", g.authMiddleware(), g.removeAttester)

		v1.POST("/grants", g.authMiddleware(), g.grant)
		v1.POST("/grants/batch", g.authMiddleware(), g.batchGrant)
		v1.POST("/claims/batch", g.authMiddleware(), g.batchClaim)

		v1.GET("/grants/:beneficiary/:seq", g.authMiddleware(), g.getSchedule)
		v1.GET("/grants/:beneficiary/:seq/vested", g.authMiddleware(), g.getVested)
		v1.GET("/grants/:beneficiary/:seq/modifications", g.authMiddleware(), g.getModifications)
		v1.POST("/grants/:beneficiary/:seq/claim", g.authMiddleware(), g.claim)
		v1.POST("/grants/:beneficiary/:seq/revoke", g.authMiddleware(), g.revoke)
		v1.PATCH("/grants/:beneficiary/:seq", g.authMiddleware(), g.modify)
		v1.POST("/grants/:beneficiary/:seq/triggers/:index", g.authMiddleware(), g.applyCondition)

		v1.GET("/ws", g.authMiddleware(), g.handleWebSocket)
	}
}

// Handler returns the underlying http handler.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := g.auth.VerifyToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) vesting.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(vesting.Actor)
	return actor
}

func scheduleIDFrom(c *gin.Context) (vesting.ScheduleID, bool) {
	beneficiary, err := uuid.Parse(c.Param("beneficiary"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid beneficiary id"})
		return vesting.ScheduleID{}, false
	}
	seq, err := strconv.ParseUint(c.Param("seq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sequence"})
		return vesting.ScheduleID{}, false
	}
	return vesting.ScheduleID{Beneficiary: beneficiary, Seq: seq}, true
}

// statusOf maps domain error codes onto HTTP statuses.
func statusOf(err error) int {
	var corrupt *vesting.CorruptionError
	if errors.As(err, &corrupt) {
		return http.StatusInternalServerError
	}
	switch vesting.CodeOf(err) {
	case vesting.CodeUnauthorized, vesting.CodeConditionUnauthorized:
		return http.StatusForbidden
	case vesting.CodeInstanceNotFound:
		return http.StatusNotFound
	case vesting.CodeValidation, vesting.CodeNothingClaimable:
		return http.StatusBadRequest
	case vesting.CodePaused, vesting.CodeNotInitialized:
		return http.StatusServiceUnavailable
	case vesting.CodeAlreadyInitialized, vesting.CodeInstanceInactive, vesting.CodeInstanceAlreadyInactive:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error(), "code": vesting.CodeOf(err)})
}

func (g *Gateway) initialize(c *gin.Context) {
	var req struct {
		Admin      uuid.UUID `json:"admin"`
		Governance uuid.UUID `json:"governance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := g.engine.Initialize(c.Request.Context(), req.Admin, req.Governance); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "initialized"})
}

func (g *Gateway) pause(c *gin.Context) {
	if err := g.engine.Pause(c.Request.Context(), actorFrom(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (g *Gateway) resume(c *gin.Context) {
	if err := g.engine.Resume(c.Request.Context(), actorFrom(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (g *Gateway) registerAttester(c *gin.Context) {
	if err := g.auth.RequireAdmin(actorFrom(c)); err != nil {
		fail(c, err)
		return
	}
	var req struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	g.auth.RegisterAttester(req.ID)
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (g *Gateway) removeAttester(c *gin.Context) {
	if err := g.auth.RequireAdmin(actorFrom(c)); err != nil {
		fail(c, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attester id"})
		return
	}
	g.auth.RemoveAttester(id)
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (g *Gateway) grant(c *gin.Context) {
	var req vesting.GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := g.engine.Grant(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"schedule": id})
}

func (g *Gateway) batchGrant(c *gin.Context) {
	var req struct {
		Requests []vesting.GrantRequest `json:"requests"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := g.engine.ProcessGrants(c.Request.Context(), actorFrom(c), req.Requests)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (g *Gateway) batchClaim(c *gin.Context) {
	var req struct {
		Requests []vesting.ClaimRequest `json:"requests"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	results, err := g.engine.ProcessClaims(c.Request.Context(), actorFrom(c), req.Requests)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (g *Gateway) getSchedule(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	s, err := g.engine.GetSchedule(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (g *Gateway) getVested(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	vested, err := g.engine.VestedAmount(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vested": vested.String()})
}

func (g *Gateway) getModifications(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	mods, err := g.engine.Modifications(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"modifications": mods})
}

func (g *Gateway) claim(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	amount, err := g.engine.Claim(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount.String()})
}

func (g *Gateway) revoke(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	var req struct {
		ForfeitUnvested bool `json:"forfeit_unvested"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := g.engine.Revoke(c.Request.Context(), actorFrom(c), id, req.ForfeitUnvested); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (g *Gateway) modify(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	var change vesting.ScheduleChange
	if err := c.ShouldBindJSON(&change); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := g.engine.Modify(c.Request.Context(), actorFrom(c), id, change); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "modified"})
}

func (g *Gateway) applyCondition(c *gin.Context) {
	id, ok := scheduleIDFrom(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trigger index"})
		return
	}
	var ev struct {
		Metric   decimal.Decimal `json:"metric"`
		Approved bool            `json:"approved"`
		Note     string          `json:"note"`
	}
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actor := actorFrom(c)
	res, err := g.engine.ApplyCondition(c.Request.Context(), actor, id, index, vesting.Evidence{
		Attester: actor.ID,
		Metric:   ev.Metric,
		Approved: ev.Approved,
		Note:     ev.Note,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	if g.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event feed unavailable"})
		return
	}
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	clientID := uuid.New()
	send := make(chan []byte, 64)

	g.wsMu.Lock()
	g.wsClients[clientID] = send
	g.wsMu.Unlock()

	defer func() {
		g.wsMu.Lock()
		delete(g.wsClients, clientID)
		g.wsMu.Unlock()
		conn.Close()
	}()

	// Drop the client on any read error so closed sockets are reaped.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (g *Gateway) broadcast(data []byte) {
	g.wsMu.RLock()
	defer g.wsMu.RUnlock()
	for _, send := range g.wsClients {
		select {
		case send <- data:
		default:
			// Slow consumer; skip rather than block the relay.
		}
	}
}
