package access

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/wedcards/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for JwtMiddleware
type JwtMiddlewareBuilder struct {
	// Secret is the shared HMAC secret tokens are signed with
	Secret []byte
	// Issuer is the accepted issuer for the token
	Issuer string
	// WriteError answers rejected tokens. Defaults to a plain text http.Error.
	WriteError func(w http.ResponseWriter, r *http.Request, status int, message string)
}

// Claims are the claims of a bearer token accepted by the middleware
type Claims struct {
	EMail    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
	Weddings []string `json:"weddings,omitempty"`
	jwt.RegisteredClaims
}

// NewJwtMiddleware returns a middleware handler to validate
// JWT bearer token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer" header. The token
// must be signed with HS256 and the configured secret, and carry the configured
// issuer. The identity is a combination of the token issuer with the user's email,
// separated by the pipe symbol '|'.
//
// Requests without token pass through unauthenticated. This is a final handler
// with regards to the bearer token: it returns http.StatusUnauthorized when a
// token is present but invalid.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if len(jmb.Secret) == 0 {
		panic("jwt middleware requires a secret")
	}

	keyLookup := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jmb.Secret, nil
	}
	writeError := jmb.WriteError
	if writeError == nil {
		writeError = func(w http.ResponseWriter, r *http.Request, status int, message string) {
			http.Error(w, message, status)
		}
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) > 0 && bearer != "null" {
				if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
					tokenString = bearer[7:]
				} else {
					tokenString = bearer
				}
			}
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			claims := Claims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyLookup)
			if err != nil || !token.Valid || claims.Issuer != jmb.Issuer {
				logger.FromContext(r.Context()).WithError(err).Infoln("rejected bearer token")
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}

			// identity is a combination of issuer and email
			identity := claims.Issuer + "|" + claims.EMail
			auth := &Authorization{Identity: identity, Roles: claims.Roles}
			for _, s := range claims.Weddings {
				id, err := uuid.Parse(s)
				if err != nil {
					writeError(w, r, http.StatusUnauthorized, "invalid token")
					return
				}
				auth.Weddings = append(auth.Weddings, id)
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity)
			ctx = auth.ContextWithAuthorization(ctx)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
