package confirm

import (
	"errors"
	"net/http"
	"strconv"

	auth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"

	"github.com/rackside/league-sync/repos/matchdb"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	DELETE(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The manager we provide the HTTP transport for.
	Manager *Manager

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.POST("/match", h.createMatchHandler)
	r.POST("/session", h.openSessionHandler)
	r.DELETE("/session/:match_id/:team_id", h.closeSessionHandler)
	r.POST("/session/:match_id/:team_id/games/:number/result", h.submitResultHandler)
	r.POST("/session/:match_id/:team_id/games/:number/confirm", h.confirmHandler)
	r.POST("/session/:match_id/:team_id/games/:number/vacate", h.requestVacateHandler)
	r.POST("/session/:match_id/:team_id/games/:number/deny-vacate", h.denyVacateHandler)
	r.POST("/session/:match_id/:team_id/games/:number/editing", h.editingHandler)
	r.GET("/session/:match_id/:team_id/pending", h.pendingHandler)
	r.POST("/session/:match_id/:team_id/pending/accept", h.acceptPendingHandler)
	r.POST("/session/:match_id/:team_id/pending/deny", h.denyPendingHandler)
	r.POST("/session/:match_id/:team_id/auto-confirm", h.autoConfirmHandler)
	r.POST("/session/:match_id/:team_id/verify", h.verifyHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (h *httpHandler) createMatchHandler(c *gin.Context) {
	var request CreateMatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	matchID, err := h.Manager.CreateMatch(c, request.HomeTeamID, request.AwayTeamID,
		request.PlayersPerTeam, request.DoubleRoundRobin, request.HandicapDifferential)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": matchID})
}

func (h *httpHandler) openSessionHandler(c *gin.Context) {
	var request OpenSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	side := SideAway
	if request.Side == string(SideHome) {
		side = SideHome
	}

	_, err := h.Manager.Open(SessionOptions{
		MatchID:     request.MatchID,
		TeamID:      request.TeamID,
		UserID:      userID(c),
		Side:        side,
		AutoConfirm: request.AutoConfirm,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": request.MatchID, "team_id": request.TeamID})
}

func (h *httpHandler) closeSessionHandler(c *gin.Context) {
	h.Manager.Close(c.Param("match_id"), c.Param("team_id"))
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *httpHandler) submitResultHandler(c *gin.Context) {
	session, number, ok := h.session(c)
	if !ok {
		return
	}

	var request SubmitResultRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	err := session.SubmitGameResult(c, number, request.WinnerTeamID, request.WinnerPlayerID,
		request.BreakAndRun, request.GoldenBreak)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_number": number})
}

func (h *httpHandler) confirmHandler(c *gin.Context) {
	session, number, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.ConfirmGame(c, number); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_number": number})
}

func (h *httpHandler) requestVacateHandler(c *gin.Context) {
	session, number, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.RequestVacate(c, number); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_number": number})
}

func (h *httpHandler) denyVacateHandler(c *gin.Context) {
	session, number, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.DenyVacate(c, number); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_number": number})
}

func (h *httpHandler) editingHandler(c *gin.Context) {
	session, number, ok := h.session(c)
	if !ok {
		return
	}

	var request EditingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	session.SetEditing(number, request.Editing)
	c.JSON(http.StatusOK, gin.H{"game_number": number, "editing": request.Editing})
}

func (h *httpHandler) pendingHandler(c *gin.Context) {
	session, ok := h.Manager.Get(c.Param("match_id"), c.Param("team_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
		return
	}

	item, ok := session.Pending()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"pending": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": item})
}

func (h *httpHandler) acceptPendingHandler(c *gin.Context) {
	session, ok := h.Manager.Get(c.Param("match_id"), c.Param("team_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
		return
	}
	if err := session.AcceptPending(c); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (h *httpHandler) denyPendingHandler(c *gin.Context) {
	session, ok := h.Manager.Get(c.Param("match_id"), c.Param("team_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
		return
	}
	if err := session.DenyPending(c); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"denied": true})
}

func (h *httpHandler) autoConfirmHandler(c *gin.Context) {
	session, ok := h.Manager.Get(c.Param("match_id"), c.Param("team_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
		return
	}

	var request AutoConfirmRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	session.SetAutoConfirm(request.Enabled)
	c.JSON(http.StatusOK, gin.H{"auto_confirm": request.Enabled})
}

func (h *httpHandler) verifyHandler(c *gin.Context) {
	session, ok := h.Manager.Get(c.Param("match_id"), c.Param("team_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
		return
	}
	if err := session.VerifyMatch(c); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

func (h *httpHandler) session(c *gin.Context) (*Session, int, bool) {
	session, ok := h.Manager.Get(c.Param("match_id"), c.Param("team_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrNoSession.Error()})
		return nil, 0, false
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game number must be an integer"})
		return nil, 0, false
	}
	return session, number, true
}

func userID(c *gin.Context) string {
	// Set by the firebase auth middleware; empty on unauthenticated groups.
	if v, exists := c.Get("token"); exists {
		if token, ok := v.(*auth.Token); ok {
			return token.UID
		}
	}
	return ""
}

func writeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, matchdb.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrGameNotOpen),
		errors.Is(err, ErrGameNotConfirmed),
		errors.Is(err, ErrNothingToConfirm),
		errors.Is(err, ErrNoVacateRequest),
		errors.Is(err, ErrNothingPending),
		errors.Is(err, ErrMatchVerified),
		errors.Is(err, ErrSessionExists):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
	c.Abort()
}
