// Package http provides the REST API of the filekeep file service.
//
// # Routes
//
//	POST   /files               streamed upload, name in X-File-Name or ?name=
//	GET    /files               list the caller's files (?limit=, ?cursor=)
//	GET    /files/{id}          streamed download, single byte Range, ?redirect=1
//	GET    /files/{id}/status   lifecycle state
//	PATCH  /files/{id}          rename, body {"name": "..."}
//	DELETE /files/{id}          request deletion (204)
//	POST   /admin/reconcile     run one reconcile pass (files:admin)
//	GET    /healthz             readiness, unauthenticated
//	GET    /metrics             Prometheus metrics, unauthenticated
//
// Upload bodies are handed to the service as the raw request stream and
// download bodies are copied straight from the blob store, so neither is
// buffered in memory.
//
// # Authentication
//
// Every /files and /admin route requires "Authorization: Bearer <jwt>".
// AuthMiddleware verifies the token with a TokenVerifier and stores the
// identity in the request context, where the service checks scopes and
// ownership:
//
//	verifier, _ := token.NewVerifier(cfg.Auth.Token, secrets, logger)
//	handler := http.NewHandler(&http.HandlerConfig{
//	    Verifier:   verifier,
//	    Reconciler: reconciler,
//	}, service)
//	server := &http.Server{Addr: ":8080", Handler: handler.Router()}
//
// # Errors
//
// Errors are JSON objects {"error": code, "message": text}. ErrorStatus holds
// the mapping from service errors to status codes.
package http
