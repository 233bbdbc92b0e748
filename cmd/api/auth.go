package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pefman/hnefatafl-online/internal/store"
)

const cookieName = "tafl_token"

type credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func validateSignup(name, password string) error {
	if len(name) < 3 || len(name) > 24 {
		return errors.New("name must be 3-24 characters")
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return errors.New("name: letters, numbers and underscore only")
		}
	}
	if len(password) < 8 || len(password) > 100 {
		return errors.New("password must be 8-100 characters")
	}
	return nil
}

func hashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (s *apiServer) signJWT(u store.User) (string, time.Time, error) {
	exp := time.Now().Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   u.ID,
		"name": u.Name,
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
	})
	ss, err := token.SignedString(s.jwtSecret)
	return ss, exp, err
}

func setAuthCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

func clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// bearerOrCookie pulls the token from an Authorization header first,
// falling back to the auth cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

type contextKey string

const userCtxKey = contextKey("user")

type authUser struct {
	ID   string
	Name string
}

// requireAuth admits requests carrying a valid token for a user that
// still exists.
func (s *apiServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerOrCookie(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		id, _ := claims["id"].(string)
		name, _ := claims["name"].(string)
		if id == "" || name == "" {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if _, err := s.store.UserByID(r.Context(), id); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey, authUser{ID: id, Name: name})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) (authUser, bool) {
	u, ok := r.Context().Value(userCtxKey).(authUser)
	return u, ok
}

// requireServiceKey guards server-to-server endpoints. With no key
// configured the guard is open, which suits local development.
func (s *apiServer) requireServiceKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.serviceKey != "" && r.Header.Get("X-Service-Key") != s.serviceKey {
			writeError(w, http.StatusUnauthorized, "bad service key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
