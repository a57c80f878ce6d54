package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mprlab/colist/internal/model"
	"github.com/mprlab/colist/internal/users"
)

type registerRequestPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userPayload struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type authResponsePayload struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
	User        userPayload `json:"user"`
}

func toUserPayload(user model.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
	}
}

func (h *httpHandler) issueAuthResponse(c *gin.Context, status int, user model.User) {
	token, expiresIn, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(status, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        toUserPayload(user),
	})
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), request.Username, request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issueAuthResponse(c, http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issueAuthResponse(c, http.StatusOK, user)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	user, err := h.users.FindByID(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserPayload(user))
}

type editProfileRequestPayload struct {
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

func (h *httpHandler) handleEditProfile(c *gin.Context) {
	var request editProfileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.EditProfile(c.Request.Context(), c.GetString(userIDContextKey), users.ProfileUpdate{
		Username:  request.Username,
		AvatarURL: request.AvatarURL,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserPayload(user))
}

type changePasswordRequestPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *httpHandler) handleChangePassword(c *gin.Context) {
	var request changePasswordRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.users.ChangePassword(c.Request.Context(), c.GetString(userIDContextKey),
		request.CurrentPassword, request.NewPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}
