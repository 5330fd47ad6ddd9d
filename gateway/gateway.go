package gateway

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	// Local Packages
	config "termbridge/config"
	metrics "termbridge/metrics"
	models "termbridge/models"
	protocol "termbridge/protocol"
	utils "termbridge/utils"

	// External Packages
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sender runs command sessions against a terminal. The protocol engine
// is the production implementation; tests swap in scripted ones.
type Sender interface {
	SendCommand(ctx context.Context, target protocol.Target, envelope any, tmo protocol.Timeouts) protocol.Result
	Probe(ctx context.Context, target protocol.Target, timeout time.Duration) (time.Duration, error)
}

// Settings is one immutable view of the process wide terminal defaults.
type Settings struct {
	IP      string
	Port    int
	AltPort int
	EcrID   string
	Connect time.Duration
	Read    time.Duration
	Idle    time.Duration
}

// Defaults guards the runtime mutable settings. POST /config swaps
// fields under the lock while requests work from a snapshot.
type Defaults struct {
	mu sync.RWMutex
	v  Settings
}

func NewDefaults(cfg *config.Config) *Defaults {
	return &Defaults{v: Settings{
		IP:      cfg.Terminal.IP,
		Port:    cfg.Terminal.Port,
		AltPort: cfg.Terminal.AltPort,
		EcrID:   cfg.Terminal.EcrID,
		Connect: cfg.Timeouts.Connect(),
		Read:    cfg.Timeouts.Read(),
		Idle:    cfg.Timeouts.IdleByte(),
	}}
}

func (d *Defaults) Snapshot() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.v
}

func (d *Defaults) update(mutate func(*Settings)) Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	mutate(&d.v)
	return d.v
}

// targetLocks serializes transactional commands per terminal address;
// a physical device runs one transaction at a time.
type targetLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTargetLocks() *targetLocks {
	return &targetLocks{locks: map[string]*sync.Mutex{}}
}

func (t *targetLocks) acquire(addr string) func() {
	t.mu.Lock()
	lock, ok := t.locks[addr]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[addr] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Gateway is the POS facing HTTP surface. Every command endpoint
// resolves a target, shapes an envelope and runs one protocol session.
type Gateway struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	engine   Sender
	defaults *Defaults
	locks    *targetLocks
}

func New(logger *zap.Logger, m *metrics.Metrics, engine Sender, defaults *Defaults) *Gateway {
	return &Gateway{
		logger:   logger,
		metrics:  m,
		engine:   engine,
		defaults: defaults,
		locks:    newTargetLocks(),
	}
}

// Router wires the endpoint table.
func (g *Gateway) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), g.observe)

	router.GET("/health", g.Health)
	router.GET("/availability", g.Availability)
	router.GET("/ping", g.Ping)
	router.GET("/metrics", gin.WrapH(g.metrics.Handler()))

	router.POST("/sale", g.Sale)
	router.POST("/sale/lodging", g.SaleLodging)
	router.POST("/preauth", g.PreAuth)
	router.POST("/auth-completion", g.AuthCompletion)
	router.POST("/void", g.Void)
	router.POST("/refund", g.Refund)
	router.POST("/tip-adjust", g.TipAdjust)
	router.POST("/batch-close", g.BatchClose)
	router.POST("/command", g.Command)
	router.POST("/config", g.Configure)
	return router
}

func (g *Gateway) observe(c *gin.Context) {
	c.Next()
	g.metrics.HTTPRequests.WithLabelValues(c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()
}

// CommandResponse is the gateway answer for every command endpoint. OK
// reflects the transport outcome alone; the session log always rides
// along because it is the principal debugging artifact.
type CommandResponse struct {
	Success   bool                  `json:"success"`
	RequestID string                `json:"requestId"`
	OK        bool                  `json:"ok"`
	Rsp       json.RawMessage       `json:"rsp,omitempty"`
	Err       string                `json:"error,omitempty"`
	Log       []models.SessionEvent `json:"log"`
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

// parseBody reads and merges the request body for the given command.
func parseBody(c *gin.Context, command string) (*models.CommandBody, bool) {
	body, err := models.ParseCommandBody(c.Request.Body, command)
	if err != nil {
		badRequest(c, err.Error())
		return nil, false
	}
	return body, true
}

// resolveTarget applies the nested over top-level over defaults
// precedence for the device address and ECR id. The body merge already
// folded nested fields over top-level ones.
func (g *Gateway) resolveTarget(body *models.CommandBody) (protocol.Target, string, error) {
	settings := g.defaults.Snapshot()
	target := protocol.Target{IP: settings.IP, Port: settings.Port}
	ecrID := settings.EcrID

	if ip := body.String("ip"); ip != "" {
		target.IP = ip
	}
	port, present, err := body.Port("port")
	if err != nil {
		return protocol.Target{}, "", err
	}
	if present {
		target.Port = port
	}
	if id := body.String("ecrId"); id != "" {
		ecrID = id
	}
	return target, ecrID, nil
}

// queryTarget resolves the target for the GET probes.
func (g *Gateway) queryTarget(c *gin.Context) (protocol.Target, string, bool) {
	settings := g.defaults.Snapshot()
	target := protocol.Target{IP: settings.IP, Port: settings.Port}
	ecrID := settings.EcrID

	if ip := c.Query("ip"); ip != "" {
		target.IP = ip
	}
	if raw := c.Query("port"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			badRequest(c, "port must be a positive integer")
			return protocol.Target{}, "", false
		}
		target.Port = port
	}
	if id := c.Query("ecrId"); id != "" {
		ecrID = id
	}
	return target, ecrID, true
}

// run executes one command session and writes the standard response.
// Transactional commands serialize per terminal address; probes and
// Ping bypass the queue.
func (g *Gateway) run(c *gin.Context, command string, target protocol.Target, ecrID string, payload any, serialize bool) {
	requestID := utils.NewRequestID()
	envelope, err := models.NewCommandEnvelope(command, ecrID, requestID, payload)
	if err != nil {
		g.logger.Error("cannot build envelope", zap.String("command", command), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "cannot build envelope"})
		return
	}

	settings := g.defaults.Snapshot()
	tmo := protocol.Timeouts{Connect: settings.Connect, Overall: settings.Read, Idle: settings.Idle}

	if serialize {
		unlock := g.locks.acquire(target.Addr())
		defer unlock()
	}

	g.logger.Info("command dispatched", zap.String("command", command),
		zap.String("addr", target.Addr()), zap.String("requestId", requestID))

	res := g.engine.SendCommand(c.Request.Context(), target, envelope, tmo)
	c.JSON(http.StatusOK, CommandResponse{
		Success:   true,
		RequestID: requestID,
		OK:        res.OK,
		Rsp:       res.Rsp,
		Err:       res.Err,
		Log:       res.Log,
	})
}

// send is the common path of the transactional endpoints.
func (g *Gateway) send(c *gin.Context, command string, body *models.CommandBody, payload any) {
	target, ecrID, err := g.resolveTarget(body)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	g.run(c, command, target, ecrID, payload, true)
}

// Health reports liveness, the effective terminal defaults and whether
// the device accepts connections right now.
func (g *Gateway) Health(c *gin.Context) {
	target, ecrID, ok := g.queryTarget(c)
	if !ok {
		return
	}
	settings := g.defaults.Snapshot()
	latency, probeErr := g.engine.Probe(c.Request.Context(), target, settings.Connect)

	resp := gin.H{
		"status":    "ok",
		"terminal":  gin.H{"ip": target.IP, "port": target.Port, "altPort": settings.AltPort, "ecrId": ecrID},
		"reachable": probeErr == nil,
	}
	if probeErr == nil {
		resp["latencyMs"] = latency.Milliseconds()
	} else {
		resp["error"] = probeErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Availability is a bare TCP connect probe against the terminal.
func (g *Gateway) Availability(c *gin.Context) {
	target, _, ok := g.queryTarget(c)
	if !ok {
		return
	}
	settings := g.defaults.Snapshot()
	latency, err := g.engine.Probe(c.Request.Context(), target, settings.Connect)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "latencyMs": latency.Milliseconds()})
}

// Ping exercises the full command path without touching a transaction.
func (g *Gateway) Ping(c *gin.Context) {
	target, ecrID, ok := g.queryTarget(c)
	if !ok {
		return
	}
	g.run(c, "Ping", target, ecrID, nil, false)
}

// Configure applies a partial runtime override to the process defaults
// and echoes the effective settings.
func (g *Gateway) Configure(c *gin.Context) {
	body, ok := parseBody(c, "config")
	if !ok {
		return
	}

	port, portSet, err := intField(body, "port")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	altPort, altSet, err := intField(body, "altPort")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	connect, connectSet, err := intField(body, "connectTimeoutMs")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	read, readSet, err := intField(body, "readTimeoutMs")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	idle, idleSet, err := intField(body, "idleByteTimeoutMs")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	effective := g.defaults.update(func(s *Settings) {
		if ip := body.String("ip"); ip != "" {
			s.IP = ip
		}
		if id := body.String("ecrId"); id != "" {
			s.EcrID = id
		}
		if portSet {
			s.Port = port
		}
		if altSet {
			s.AltPort = altPort
		}
		if connectSet {
			s.Connect = time.Duration(connect) * time.Millisecond
		}
		if readSet {
			s.Read = time.Duration(read) * time.Millisecond
		}
		if idleSet {
			s.Idle = time.Duration(idle) * time.Millisecond
		}
	})

	g.logger.Info("terminal defaults updated",
		zap.String("ip", effective.IP), zap.Int("port", effective.Port))
	c.JSON(http.StatusOK, gin.H{"success": true, "config": settingsView(effective)})
}

func settingsView(s Settings) gin.H {
	return gin.H{
		"ip":                s.IP,
		"port":              s.Port,
		"altPort":           s.AltPort,
		"ecrId":             s.EcrID,
		"connectTimeoutMs":  int(s.Connect / time.Millisecond),
		"readTimeoutMs":     int(s.Read / time.Millisecond),
		"idleByteTimeoutMs": int(s.Idle / time.Millisecond),
	}
}

// intField reads a positive integer body field sent as number or
// string.
func intField(body *models.CommandBody, key string) (int, bool, error) {
	raw := body.String(key)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, true, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, true, nil
}
