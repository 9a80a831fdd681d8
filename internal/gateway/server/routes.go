package server

import (
	"net/http"

	"deepbuild/internal/gateway/handler"
	"deepbuild/internal/gateway/middleware"
)

func NewMux(h *handler.Handler) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)

	// Middleware
	return middleware.CORS(middleware.Logging(nil, mux))
}
