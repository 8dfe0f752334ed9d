package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// RoleAdmin is the role claim required by the admin API.
const RoleAdmin = "admin"

var errForbiddenRole = errors.New("role is not allowed")

// AdminClaims are the JWT claims accepted by the admin API.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueAdminToken signs an HS256 admin token. It backs the CLI and tests.
func IssueAdminToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: RoleAdmin,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Server) parseAdminToken(tokenString string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if s.opts.AdminIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.opts.AdminIssuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.opts.AdminSecret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: %q", errForbiddenRole, claims.Role)
	}
	return claims, nil
}

// requireAdmin guards a handler with a bearer token. The admin API is absent
// when no secret is configured.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.AdminSecret == "" {
			writeDetail(w, http.StatusNotFound, "admin API disabled")
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="hotiron"`)
			writeDetail(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.parseAdminToken(tokenString)
		if err != nil {
			s.logger.Info("Admin token rejected",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.Error(err))
			if errors.Is(err, errForbiddenRole) {
				writeDetail(w, http.StatusForbidden, err.Error())
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="hotiron", error="invalid_token"`)
			writeDetail(w, http.StatusUnauthorized, "invalid token")
			return
		}

		s.logger.Info("Admin request authorised",
			zap.String("subject", claims.Subject),
			zap.String("path", r.URL.Path))
		next(w, r)
	}
}
