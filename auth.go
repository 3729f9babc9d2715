package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"facturas/models"
	"facturas/pkg/store"
)

// accessClaims are carried by the access token.
type accessClaims struct {
	UserID uint   `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// issueAccessToken signs a short-lived HS256 token for user.
func (s *server) issueAccessToken(user models.User) (string, error) {
	now := time.Now()
	claims := accessClaims{
		UserID: user.ID,
		Role:   user.Role.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Auth.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// parseAccessToken validates the Authorization header value.
func (s *server) parseAccessToken(header string) (*accessClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, errors.New("missing or invalid Authorization header")
	}
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func setIdentity(c *gin.Context, claims *accessClaims) {
	c.Set("username", claims.Subject)
	c.Set("user_id", claims.UserID)
	if claims.Role != "" {
		c.Set("role", claims.Role)
	}
}

// jwtAuthMiddleware rejects requests without a valid access token.
func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.parseAccessToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// optionalAuthMiddleware records the caller when a valid token is sent and
// lets anonymous requests through.
func (s *server) optionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h := c.GetHeader("Authorization"); h != "" {
			if claims, err := s.parseAccessToken(h); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// requireStore answers 503 when no database is configured.
func (s *server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgNoDB})
		return false
	}
	return true
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *server) registerHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_, err := s.store.RegisterUser(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, store.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func (s *server) loginHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.store.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, store.ErrInvalidCredentials) {
			zap.L().Error("login", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": store.ErrInvalidCredentials.Error()})
		return
	}
	s.respondTokens(c, user, "", gin.H{"message": "login successful"})
}

// respondTokens answers with a fresh access token and refreshToken, creating
// one when it is empty.
func (s *server) respondTokens(c *gin.Context, user models.User, refreshToken string, extra gin.H) {
	token, err := s.issueAccessToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	if refreshToken == "" {
		refreshToken, err = s.store.CreateRefreshToken(c.Request.Context(), user.ID, s.cfg.Auth.RefreshTTL)
		if err != nil {
			zap.L().Error("create refresh token", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
			return
		}
	}
	resp := gin.H{"token": token, "refresh_token": refreshToken}
	for k, v := range extra {
		resp[k] = v
	}
	c.JSON(http.StatusOK, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// refreshHandler exchanges a refresh token for a new access token and
// rotates the refresh token.
func (s *server) refreshHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, next, err := s.store.RotateRefreshToken(c.Request.Context(), req.RefreshToken, s.cfg.Auth.RefreshTTL)
	if err != nil {
		if !errors.Is(err, store.ErrInvalidCredentials) {
			zap.L().Error("rotate refresh token", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	s.respondTokens(c, user, next, nil)
}

// revokeRefreshHandler revokes a refresh token on logout.
func (s *server) revokeRefreshHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.store.RevokeRefreshToken(c.Request.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	case err != nil:
		zap.L().Error("revoke refresh token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

// currentUser reloads the caller so a changed role or a deleted account
// takes effect before the access token expires.
func (s *server) currentUser(c *gin.Context) (models.User, bool) {
	id, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return models.User{}, false
	}
	user, err := s.store.UserByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return models.User{}, false
	}
	if err != nil {
		zap.L().Error("load user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.User{}, false
	}
	return user, true
}

func (s *server) meHandler(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	user, ok := s.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"role":     user.Role.Name,
	})
}
