package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmorelli/tutoring-slots/internal/config"
)

// RoleAdmin is the role claim carried by operator tokens and required
// by every administrative route.
const RoleAdmin = "ADMIN"

// AuthHandler issues bearer tokens for the single configured operator
// credential.  There is no self-service account surface; the
// credential lives in the environment as an email plus a bcrypt hash.
type AuthHandler struct {
	cfg config.Config
}

// NewAuthHandler constructs an AuthHandler from the loaded configuration.
func NewAuthHandler(cfg config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// Login handles POST /v1/auth/login.  On a matching email and password
// it returns a signed HS256 token with the ADMIN role; any mismatch is
// a uniform 401 so the response does not reveal which part failed.
func (h *AuthHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	emailOK := subtle.ConstantTimeCompare([]byte(body.Email), []byte(h.cfg.OperatorEmail)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.cfg.OperatorPassHash), []byte(body.Password))
	if !emailOK || passErr != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	exp := time.Now().UTC().Add(time.Duration(h.cfg.AccessTTLMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub":  body.Email,
		"role": RoleAdmin,
		"exp":  exp.Unix(),
		"iat":  time.Now().UTC().Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to sign token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": signed,
		"expires_at":   exp.Format(time.RFC3339),
	})
}
