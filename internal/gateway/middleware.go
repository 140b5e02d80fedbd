package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/JUNIORUSENI/system-gestion-hopital/pkg/types"
)

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// actorFromContext returns the caller identity the middleware attached.
func actorFromContext(ctx context.Context) (types.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(types.Actor)
	return actor, ok
}

// requestIDMiddleware assigns every request an id, honoring one supplied by
// an upstream proxy.
func (s *Service) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// loggingMiddleware logs one line per request with status and latency.
func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(recorder, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.WithFields(map[string]interface{}{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      recorder.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Request processed")
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// identityMiddleware builds the immutable Actor for the request: a bearer
// token's claims when present, otherwise the X-Actor-* headers set by
// trusted internal callers. No identity means no access.
func (s *Service) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := s.extractActor(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func (s *Service) extractActor(r *http.Request) (types.Actor, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return types.Actor{}, fmt.Errorf("malformed authorization header")
		}
		return s.actorFromToken(parts[1])
	}

	if id := r.Header.Get("X-Actor-ID"); id != "" {
		actor := types.Actor{
			ID:   id,
			Role: types.Role(r.Header.Get("X-Actor-Role")),
		}
		if centres := r.Header.Get("X-Actor-Centres"); centres != "" {
			actor.CentreIDs = strings.Split(centres, ",")
		}
		return actor, nil
	}

	return types.Actor{}, fmt.Errorf("no caller identity")
}

// actorFromToken verifies the HMAC-signed token and maps its claims onto an
// Actor. Token issuance lives elsewhere; this side only parses.
func (s *Service) actorFromToken(raw string) (types.Actor, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return types.Actor{}, fmt.Errorf("token rejected: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Actor{}, fmt.Errorf("unreadable token claims")
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return types.Actor{}, fmt.Errorf("token missing subject or role")
	}

	actor := types.Actor{ID: sub, Role: types.Role(role)}
	if rawCentres, ok := claims["centre_ids"].([]interface{}); ok {
		for _, c := range rawCentres {
			if id, ok := c.(string); ok {
				actor.CentreIDs = append(actor.CentreIDs, id)
			}
		}
	}
	return actor, nil
}
