// Package httpapi exposes the session and account services over HTTP
// using gin.
package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

const tokenType = "Bearer"

// Sessions is the part of services.SessionService the handlers use.
type Sessions interface {
	Authenticator
	SignIn(ctx context.Context, identifier, secret string) (*services.SessionBundle, error)
	Refresh(ctx context.Context, refreshToken string) (*services.SessionBundle, error)
	SignOut(ctx context.Context, userID string) error
}

// Accounts is the part of services.AccountService the handlers use.
type Accounts interface {
	Register(ctx context.Context, in services.NewIdentity) (*models.Identity, error)
	Delete(ctx context.Context, actor *models.Identity, targetID string) error
}

// Deps collects what the router needs. Observer, Metrics and Health are
// optional.
type Deps struct {
	Sessions Sessions
	Accounts Accounts
	Logger   logging.Logger
	Observer RequestObserver
	Metrics  http.Handler
	Health   func(ctx context.Context) error
}

type Handler struct {
	sessions Sessions
	accounts Accounts
	log      logging.Logger
	observer RequestObserver
	metrics  http.Handler
	health   func(ctx context.Context) error
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = logging.Nop{}
	}
	return &Handler{
		sessions: d.Sessions,
		accounts: d.Accounts,
		log:      log,
		observer: d.Observer,
		metrics:  d.Metrics,
		health:   d.Health,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(h.log, h.observer))
	r.NoRoute(func(c *gin.Context) { writeError(c, http.StatusNotFound, "not found") })

	r.GET("/healthz", h.Healthz)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	a := r.Group("/auth")
	a.POST("/signin", h.SignIn)
	a.POST("/refresh", h.Refresh)

	protected := r.Group("/", h.RequireAuth())
	protected.GET("/auth/me", h.Me)
	protected.POST("/auth/signout", h.SignOut)
	protected.DELETE("/users/:id", h.DeleteUser)

	admin := protected.Group("/admin", RequireRole(models.RoleAdmin))
	admin.POST("/users", h.CreateUser)

	return r
}

type signInRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type signInResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	models.IdentitySummary
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
}

type createUserRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email" binding:"required,email"`
	Password string   `json:"password" binding:"required"`
	Roles    []string `json:"roles"`
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "identifier and password are required")
		return
	}

	b, err := h.sessions.SignIn(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, signInResponse{
		AccessToken:     b.AccessToken,
		RefreshToken:    b.RefreshToken,
		TokenType:       tokenType,
		IdentitySummary: *b.Identity,
	})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "refreshToken is required")
		return
	}

	b, err := h.sessions.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, refreshResponse{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		TokenType:    tokenType,
	})
}

func (h *Handler) Me(c *gin.Context) {
	id, _ := auth.IdentityFrom(c.Request.Context())
	c.JSON(http.StatusOK, id.Summary())
}

func (h *Handler) SignOut(c *gin.Context) {
	id, _ := auth.IdentityFrom(c.Request.Context())
	if err := h.sessions.SignOut(c.Request.Context(), id.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	actor, _ := auth.IdentityFrom(c.Request.Context())
	if err := h.accounts.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "a valid email and a password are required")
		return
	}

	roles := make([]models.Role, 0, len(req.Roles))
	for _, r := range req.Roles {
		role := models.Role(r)
		if role != models.RoleUser && role != models.RoleAdmin {
			writeError(c, http.StatusBadRequest, "unknown role "+r)
			return
		}
		roles = append(roles, role)
	}

	u, err := h.accounts.Register(c.Request.Context(), services.NewIdentity{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Roles:    roles,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u.Summary())
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.Warn(c.Request.Context(), "health check failed", "error", err)
			writeError(c, http.StatusServiceUnavailable, common.ErrStoreUnavailable.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
