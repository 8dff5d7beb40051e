package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parktronic/internal/api/middleware"
	"parktronic/internal/domain"
	"parktronic/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	favorites   *service.FavoriteService
	log         *zap.Logger
}

func NewAuthHandler(as *service.AuthService, favorites *service.FavoriteService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: as, favorites: favorites, log: log}
}

// POST /auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var dto domain.SignupDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.authService.Signup(c.Request.Context(), dto)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var dto domain.LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authService.Login(c.Request.Context(), dto)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	maxAge := int(time.Until(resp.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, resp.Token, maxAge, "/", "", false, true)
	c.JSON(http.StatusOK, resp)
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.TokenFromRequest(c)
	if token != "" {
		if err := h.authService.Logout(c.Request.Context(), token); err != nil {
			writeError(c, h.log, err)
			return
		}
	}
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.Status(http.StatusNoContent)
}

// GET /users/me
func (h *AuthHandler) Me(c *gin.Context) {
	profile, err := h.favorites.Profile(c.Request.Context(), c.GetInt(middleware.UserIDKey))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
