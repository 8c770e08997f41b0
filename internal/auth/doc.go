// Package auth provides optional caller authentication for uta-gateway.
//
// Session creation can be gated by an HS256 JWT bearer token signed with
// auth.jwt_secret. The middleware verifies the token and stores the "sub"
// claim in the request context:
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	handler = auth.HTTPAuthMiddleware(verifier, logger)(handler)
//
// Handlers then call CheckSubject to require that the session's userId is
// the token's subject. Every other endpoint is authorized by the opaque
// per-session token instead.
package auth
