package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	defaults "github.com/xtxerr/playertrack/config"
	"github.com/xtxerr/playertrack/internal/errors"
	"github.com/xtxerr/playertrack/internal/ingest"
	"github.com/xtxerr/playertrack/internal/series"
	"github.com/xtxerr/playertrack/internal/storage/types"
	"github.com/xtxerr/playertrack/internal/wire"
)

// serverView is one entry of GET /api/servers.
type serverView struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	IP          string       `json:"ip"`
	Type        string       `json:"type"`
	Color       string       `json:"color"`
	PlayerCount types.Count  `json:"playerCount"`
	Record      types.Record `json:"record"`
	Peak        wire.Peak    `json:"peak"`
}

func (s *Server) handleServers(c *gin.Context) {
	tracker := s.state.Tracker()
	servers := s.state.Roster().All()

	out := make([]serverView, 0, len(servers))
	for _, srv := range servers {
		v := serverView{
			ID:          srv.ID,
			Name:        srv.Name,
			IP:          srv.IP,
			Type:        srv.Type,
			Color:       srv.Color,
			PlayerCount: types.Absent,
			Record:      tracker.Get(srv.Key()),
			Peak:        wire.NewPeak(types.Absent, 0, false),
		}
		if w, ok := s.state.Window(srv.ID); ok {
			if p, ok := w.Newest(); ok {
				v.PlayerCount = p.Value
			}
			p, ok := w.Peak()
			v.Peak = wire.NewPeak(p.Value, p.TimestampMs, ok)
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"servers": out})
}

func (s *Server) handleSummary(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		abort(c, http.StatusBadRequest, errors.NewValidation("id", "must be an integer"))
		return
	}
	w, ok := s.state.Window(id)
	if !ok {
		abort(c, http.StatusNotFound, errors.NewNotFound("server", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, series.Summarize(w.Points()))
}

func (s *Server) handleIngest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, defaults.DefaultMaxIngestBody)

	var tick ingest.Tick
	if err := c.ShouldBindJSON(&tick); err != nil {
		abort(c, http.StatusBadRequest, errors.Wrap(errors.ErrInvalidFormat, err.Error()))
		return
	}

	if err := s.pipeline.Submit(tick); err != nil {
		switch {
		case errors.IsValidation(err):
			abort(c, http.StatusBadRequest, err)
		case errors.Is(err, errors.ErrQueueFull):
			abort(c, http.StatusServiceUnavailable, err)
		default:
			abort(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(tick.Events)})
}
