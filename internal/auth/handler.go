package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"codecollab/internal/utils"
)

const tokenTTL = 24 * time.Hour

// Handler manages authentication endpoints: signup, login, me, logout.
type Handler struct {
	Repo      *UserRepository
	JWTSecret string
}

func NewHandler(repo *UserRepository, jwtSecret string) *Handler {
	return &Handler{Repo: repo, JWTSecret: jwtSecret}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		utils.JSONError(w, http.StatusBadRequest, "missing fields")
		return
	}

	if existing, _ := h.Repo.GetUserByEmail(req.Email); existing != nil {
		utils.JSONError(w, http.StatusConflict, "email taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	user := &User{Name: req.Name, Email: req.Email, PasswordHash: string(hash)}
	if err := h.Repo.CreateUser(user); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]any{"id": user.ID, "name": user.Name, "email": user.Email})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.Repo.GetUserByEmail(req.Email)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	signed, err := utils.IssueToken(h.JWTSecret, fmt.Sprint(user.ID), user.Name, tokenTTL)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	resp := authResponse{Token: signed}
	resp.User.ID = fmt.Sprint(user.ID)
	resp.User.Name = user.Name
	utils.JSON(w, http.StatusOK, resp)
}

// Me returns the identity carried in the presented access token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token, err := utils.TokenFromRequest(r)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	claims, err := utils.VerifyToken(token, h.JWTSecret)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	identity, err := utils.IdentityFromClaims(claims)
	if err != nil {
		utils.JSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	// Refresh the display name from the database when the record still exists.
	if id, convErr := strconv.ParseUint(identity.ID, 10, 64); convErr == nil {
		if user, repoErr := h.Repo.GetUserByID(uint(id)); repoErr == nil {
			identity.Name = user.Name
		}
	}
	utils.JSON(w, http.StatusOK, identity)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
