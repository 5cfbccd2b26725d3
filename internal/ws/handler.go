package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

const (
	writeWait  = 5 * time.Second
	subscriber = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are policed by the CORS middleware
	},
}

// Source is what the console stream reads from the kernel.
type Source interface {
	Console() *kernel.Console
	Snapshot() *kernel.Snapshot
	Done() <-chan struct{}
}

// Message is one frame in either direction.
type Message struct {
	Type    string           `json:"type"`
	Data    string           `json:"data,omitempty"`
	Message string           `json:"message,omitempty"`
	BootID  string           `json:"boot_id,omitempty"`
	Seq     uint64           `json:"seq,omitempty"`
	Snap    *kernel.Snapshot `json:"snapshot,omitempty"`
}

// Handler streams console output over WebSocket connections.
type Handler struct {
	src     Source
	metrics *monitoring.Metrics
	log     *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(src Source, metrics *monitoring.Metrics, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{src: src, metrics: metrics, log: log.Named("ws")}
}

// conn serializes writes; gorilla allows one writer at a time.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

func (c *conn) close(code int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// HandleConnection upgrades the request and streams the console: first the
// retained tail, then every later write, then a "halted" frame when the
// kernel stops. Output written while the tail is taken may appear twice.
// Clients may send "ping" and "snapshot" frames.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	cn := &conn{ws: ws}
	cons := h.src.Console()
	out, cancel := cons.Subscribe(subscriber)
	defer cancel()

	s := h.src.Snapshot()
	if err := cn.send(Message{Type: "system", Message: "console attached", BootID: s.BootID, Seq: s.Seq}); err != nil {
		return
	}
	if tail := cons.Tail(); len(tail) > 0 {
		if err := cn.send(Message{Type: "output", Data: string(tail)}); err != nil {
			return
		}
	}

	closed := make(chan struct{})
	go h.readLoop(cn, closed)

	for {
		select {
		case b := <-out:
			if err := cn.send(Message{Type: "output", Data: string(b)}); err != nil {
				return
			}
		case <-h.src.Done():
		drain:
			for {
				select {
				case b := <-out:
					if err := cn.send(Message{Type: "output", Data: string(b)}); err != nil {
						return
					}
				default:
					break drain
				}
			}
			_ = cn.send(Message{Type: "halted", Snap: h.src.Snapshot()})
			cn.close(websocket.CloseNormalClosure, "kernel halted")
			return
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Handler) readLoop(cn *conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		var msg Message
		if err := cn.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			_ = cn.send(Message{Type: "pong"})
		case "snapshot":
			_ = cn.send(Message{Type: "snapshot", Snap: h.src.Snapshot()})
		default:
			_ = cn.send(Message{Type: "error", Message: "unknown message type"})
		}
	}
}
