package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"safenet/pkg/auth"
	"safenet/pkg/logging"
	"safenet/pkg/middleware"
)

type tokenRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token exchanges the admin credential for a bearer token.
func (a *API) Token(c *gin.Context) {
	log := middleware.GetContextLogger(c, a.logger)

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.metrics.IncToken("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if err := a.validate.Struct(&req); err != nil {
		a.metrics.IncToken("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !auth.CheckCredentials(req.Username, req.Password, a.auth.Username, a.auth.PasswordHash) {
		a.metrics.IncToken("unauthorized")
		log.WithField("username", req.Username).Warn("Failed login attempt")
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
		return
	}

	token, expiresAt, err := auth.GenerateJWT(req.Username, auth.RoleAdmin, a.auth.Secret, a.auth.TokenTTL)
	if err != nil {
		a.metrics.IncToken("error")
		log.WithError(err).Error("Failed to sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	a.metrics.IncToken("success")
	log.WithFields(logging.Fields{
		"username":   req.Username,
		"expires_at": expiresAt,
	}).Info("Issued access token")

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(a.auth.TokenTTL.Seconds()),
	})
}
