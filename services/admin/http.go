package admin

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	access "github.com/rackside/league-sync/pkg/accessCode"
	resend "github.com/rackside/league-sync/repos/resend"
)

// Router is the interface for a router.
type Router interface {
	GET(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	POST(relativePath string, handlers ...gin.HandlerFunc) gin.IRoutes
	Use(middleware ...gin.HandlerFunc) gin.IRoutes
	Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup
}

// Admin is the interface for the access-granting service.
type Admin interface {
	ClaimAccess(c *gin.Context, request resend.AccessRequest) error
	AddMatchAccess(c *gin.Context, matchID, secret string) error
}

// HTTPOptions contains all the options needed for the HTTP handler.
type HTTPOptions struct {

	// The service we provide the HTTP transport for.
	Service Admin

	// The router instance to configure the HTTP routes.
	Router Router
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(opts HTTPOptions) {
	r := opts.Router
	h := &httpHandler{opts}
	r.POST("/claim", h.claimHandler)
	r.GET("/access/:access_code", h.accessHandler)
}

type httpHandler struct {
	HTTPOptions
}

func (s *httpHandler) claimHandler(c *gin.Context) {
	var request resend.AccessRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		c.Abort()
		return
	}

	if err := s.Service.ClaimAccess(c, request); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim access"})
		c.Abort()
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":   "Access code sent",
		"match_id": request.MatchID,
		"email":    request.Email,
	})
}

func (s *httpHandler) accessHandler(c *gin.Context) {
	accessCode := c.Param("access_code")
	matchID, secret, err := access.Decode(accessCode)
	if err != nil {
		log.Printf("Failed to decode access code: %v\n", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed access code"})
		c.Abort()
		return
	}

	err = s.Service.AddMatchAccess(c, matchID, secret)
	if err != nil {
		if errors.Is(err, ErrInvalidAccessCode) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not valid access code"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to grant access"})
		}
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"match_id": matchID})
}
