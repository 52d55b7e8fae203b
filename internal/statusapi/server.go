// Package statusapi serves a read-only view of a loader's split progress
// over HTTP, grounded on the teacher's echo/v5 server wiring
// (cmd/mantle/serve.go, internal/api/store.go) but with no request body to
// parse: every route only reads loader state.
package statusapi

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/thornfield-ai/splitloader/internal/loader"
	"github.com/thornfield-ai/splitloader/internal/logger"
)

// Server exposes one in-flight Loader's state for inspection.
type Server struct {
	ld  *loader.Loader
	log logger.Logger
}

// NewServer wraps ld. log defaults to logger.Default() when nil.
func NewServer(ld *loader.Loader, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{ld: ld, log: log}
}

// Register wires this server's routes onto e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/status", s.handleStatus)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type statusResponse struct {
	Incremental bool                  `json:"incremental"`
	Splits      []splitStatusResponse `json:"splits"`
}

type splitStatusResponse struct {
	Index             int    `json:"index"`
	TotalTensorCount  int    `json:"total_tensor_count"`
	LoadedTensorCount int    `json:"loaded_tensor_count"`
	DataSize          uint64 `json:"data_size"`
	Loaded            bool   `json:"loaded"`
	Released          bool   `json:"released"`
}

func (s *Server) handleStatus(c *echo.Context) error {
	snap := s.ld.Status()
	resp := statusResponse{
		Incremental: s.ld.Incremental,
		Splits:      make([]splitStatusResponse, 0, len(snap)),
	}
	for _, sp := range snap {
		resp.Splits = append(resp.Splits, splitStatusResponse{
			Index:             sp.Index,
			TotalTensorCount:  sp.TotalTensorCount,
			LoadedTensorCount: sp.LoadedTensorCount,
			DataSize:          sp.DataSize,
			Loaded:            sp.Loaded,
			Released:          sp.Released,
		})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, body)
}
