package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/programs"
)

// Source is the kernel as the monitor sees it. Everything it offers is
// safe to call while the kernel runs.
type Source interface {
	Snapshot() *kernel.Snapshot
	RunCommand(w io.Writer, line string) error
	Console() *kernel.Console
	Metrics() *monitoring.Metrics
}

// Handlers serves the read-only monitor API.
type Handlers struct {
	src      Source
	programs *programs.Registry
	log      *logging.Logger
}

// NewHandlers creates the monitor handlers.
func NewHandlers(src Source, registry *programs.Registry, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{src: src, programs: registry, log: log.Named("monitor")}
}

// Health reports liveness and the snapshot sequence.
func (h *Handlers) Health(c *gin.Context) {
	s := h.src.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"boot_id": s.BootID,
		"seq":     s.Seq,
		"halted":  s.Halted,
	})
}

// ListEnvs lists environments, optionally only those in ?status=.
func (h *Handlers) ListEnvs(c *gin.Context) {
	s := h.src.Snapshot()
	envs := s.Envs
	if q := c.Query("status"); q != "" {
		st, ok := abi.ParseEnvStatus(q)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "unknown status " + strconv.Quote(q),
			})
			return
		}
		envs = make([]kernel.EnvSnapshot, 0, len(s.Envs))
		for _, e := range s.Envs {
			if e.Status == st.String() {
				envs = append(envs, e)
			}
		}
	}
	if envs == nil {
		envs = []kernel.EnvSnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"seq":     s.Seq,
		"current": s.Current,
		"count":   len(envs),
		"envs":    envs,
	})
}

// GetEnv returns one environment by its hexadecimal id.
func (h *Handlers) GetEnv(c *gin.Context) {
	raw := strings.TrimPrefix(c.Param("id"), "0x")
	n, err := strconv.ParseUint(raw, 16, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid env id: " + c.Param("id"),
		})
		return
	}
	e, ok := h.src.Snapshot().Env(abi.EnvID(uint32(n)))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "no environment " + abi.EnvID(uint32(n)).String(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "env": e})
}

// Clocks returns every clock reading and the resolution.
func (h *Handlers) Clocks(c *gin.Context) {
	s := h.src.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"clocks":     s.Clocks,
		"resolution": s.Resolution,
		"wallclock":  s.Wallclock,
		"uptime":     s.Uptime,
	})
}

type programInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func programInfos(ps []programs.Program) []programInfo {
	out := make([]programInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, programInfo{p.Name, p.Description, string(p.Category)})
	}
	return out
}

// ListPrograms lists the bootable programs, optionally by ?category=.
func (h *Handlers) ListPrograms(c *gin.Context) {
	var cat *programs.Category
	if q := c.Query("category"); q != "" {
		v := programs.Category(q)
		cat = &v
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"programs": programInfos(h.programs.List(cat)),
		"stats":    h.programs.Stats(),
	})
}

// DiscoverPrograms ranks programs against ?q=.
func (h *Handlers) DiscoverPrograms(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "q is required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"programs": programInfos(h.programs.Discover(query, limit)),
	})
}

// Command runs one kernel monitor command and returns its text output.
func (h *Handlers) Command(c *gin.Context) {
	line := c.Param("cmd")
	if args := c.Query("args"); args != "" {
		line += " " + args
	}
	var out bytes.Buffer
	err := h.src.RunCommand(&out, line)
	switch {
	case errors.Is(err, kernel.ErrUnknownCommand):
		c.String(http.StatusNotFound, out.String())
	case err != nil:
		h.log.Warn("monitor command failed",
			zap.String("command", line),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err))
		c.String(http.StatusInternalServerError, err.Error())
	default:
		c.String(http.StatusOK, out.String())
	}
}

// ConsoleTail returns the most recent console output.
func (h *Handlers) ConsoleTail(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; charset=utf-8", h.src.Console().Tail())
}
