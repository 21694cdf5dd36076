package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "convertax/internal/errors"
	"convertax/internal/middleware"
	"convertax/internal/models"
	"convertax/internal/pagination"
	"convertax/internal/services"
)

// AuthHandler handles authentication and user profile requests.
type AuthHandler struct {
	userService  services.UserServicer
	auditService services.AuditServicer
	tokens       *middleware.TokenIssuer
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(userService services.UserServicer, auditService services.AuditServicer, tokens *middleware.TokenIssuer) *AuthHandler {
	return &AuthHandler{userService: userService, auditService: auditService, tokens: tokens}
}

// SignupRequest represents the registration request payload
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"max=100"`
}

// SigninRequest represents the login request payload
type SigninRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse represents the user data in the response
type UserResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
}

// AuthResponse represents the authentication response with token
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// Signup handles user registration
// @Summary     Register a new user
// @Description Register a new user with email and password
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       request body SignupRequest true "User registration data"
// @Success     201 {object} AuthResponse "User registered and token generated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Email already registered"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	h.auditService.Log(c.Request.Context(), user.ID, services.AuditActionSignup, "user", user.ID, c.ClientIP(), nil)

	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: toUserResponse(user)})
}

// Signin handles user login
// @Summary     Sign in
// @Description Authenticate a user and get a token
// @Tags        auth
// @Accept      json
// @Produce     json
// @Param       request body SigninRequest true "User login credentials"
// @Success     200 {object} AuthResponse "User authenticated and token generated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid credentials"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /auth/signin [post]
func (h *AuthHandler) Signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondWithError(c, err)
		return
	}

	token, err := h.tokens.Issue(user)
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: toUserResponse(user)})
}

// GetProfile returns the user's profile
// @Summary     Get user profile
// @Description Get the authenticated user's profile information
// @Tags        user
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} UserResponse "User profile"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /user/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user)})
}

// ListUsers returns every user. Admin only.
// @Summary     List users
// @Tags        user
// @Produce     json
// @Security    BearerAuth
// @Param       page     query int false "Page number" default(1)
// @Param       pageSize query int false "Items per page" default(10)
// @Success     200 {object} map[string]interface{} "Page of users"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Router      /user/all [get]
func (h *AuthHandler) ListUsers(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	users, err := h.userService.ListUsers(c.Request.Context(), page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	data := make([]UserResponse, 0, len(users.Data))
	for i := range users.Data {
		data = append(data, toUserResponse(&users.Data[i]))
	}
	c.JSON(http.StatusOK, pagination.Page[UserResponse]{Data: data, Page: users.Page, PageSize: users.PageSize})
}
