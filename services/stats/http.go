package stats

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rackside/league-sync/repos/matchdb"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provide the HTTP transport for.
	Service *StatsService

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("/report/:match_id", h.reportHandler)
	r.GET("/games/:match_id", h.gamesHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) reportHandler(c *gin.Context) {
	report, err := s.Service.MatchReport(c, c.Param("match_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *httpHandler) gamesHandler(c *gin.Context) {
	rows, err := s.Service.GameRows(c, c.Param("match_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": rows})
}

func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, matchdb.ErrNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
	c.Abort()
}
