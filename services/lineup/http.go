package lineup

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rackside/league-sync/repos/matchdb"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provide the HTTP transport for.
	Service *Service

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.GET("/lineup/:match_id/:team_id", h.getHandler)
	r.POST("/lineup/:match_id/:team_id", h.setHandler)
	r.POST("/lineup/:match_id/:team_id/lock", h.lockHandler)
	r.POST("/lineup/:match_id/:team_id/propose", h.proposeHandler)
	r.POST("/lineup/:match_id/:team_id/proposals/:proposal_id/approve", h.approveHandler)
	r.POST("/lineup/:match_id/:team_id/proposals/:proposal_id/deny", h.denyHandler)
	r.POST("/lineup/:match_id/:team_id/proposals/:proposal_id/withdraw", h.withdrawHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (h *httpHandler) getHandler(c *gin.Context) {
	lineup, err := h.Service.Get(c, c.Param("match_id"), c.Param("team_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, lineup)
}

func (h *httpHandler) setHandler(c *gin.Context) {
	var request SetLineupRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	players := make([]matchdb.LineupSlot, 0, len(request.Players))
	for _, p := range request.Players {
		players = append(players, matchdb.LineupSlot{
			PlayerID: p.PlayerID,
			Handicap: p.Handicap,
		})
	}

	err := h.Service.Set(c, c.Param("match_id"), c.Param("team_id"), players, request.HomeTeamModifier)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team_id": c.Param("team_id")})
}

func (h *httpHandler) lockHandler(c *gin.Context) {
	if err := h.Service.Lock(c, c.Param("match_id"), c.Param("team_id")); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": true})
}

func (h *httpHandler) proposeHandler(c *gin.Context) {
	var request ProposeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	proposalID, err := h.Service.Propose(c, c.Param("match_id"), c.Param("team_id"),
		request.Position, request.NewPlayerID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposal_id": proposalID})
}

func (h *httpHandler) approveHandler(c *gin.Context) {
	err := h.Service.Approve(c, c.Param("match_id"), c.Param("team_id"), c.Param("proposal_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": true})
}

func (h *httpHandler) denyHandler(c *gin.Context) {
	err := h.Service.Deny(c, c.Param("match_id"), c.Param("team_id"), c.Param("proposal_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"denied": true})
}

func (h *httpHandler) withdrawHandler(c *gin.Context) {
	err := h.Service.Withdraw(c, c.Param("match_id"), c.Param("team_id"), c.Param("proposal_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": true})
}

func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, matchdb.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, matchdb.ErrBadPosition), errors.Is(err, ErrTooManyPlayers):
		status = http.StatusBadRequest
	case errors.Is(err, ErrLineupLocked),
		errors.Is(err, ErrLineupNotLocked),
		errors.Is(err, ErrPositionPlayed),
		errors.Is(err, ErrOwnProposal),
		errors.Is(err, ErrNotProposer),
		errors.Is(err, ErrProposalDecided):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
	c.Abort()
}
