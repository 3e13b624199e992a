// README: API gateway; wires handlers to module services behind optional auth.
package http

import (
	"net/http"

	"fleet/internal/infra"
	"fleet/internal/modules/asset"
	"fleet/internal/modules/tracking"
)

type ServerDeps struct {
	Assets   *asset.Service
	Tracking *tracking.Coordinator
	// Verifier enables bearer-token auth when set.
	Verifier infra.TokenVerifier
}

type Server struct {
	assets   *asset.Service
	tracking *tracking.Coordinator
	verifier infra.TokenVerifier
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		assets:   deps.Assets,
		tracking: deps.Tracking,
		verifier: deps.Verifier,
	}
}

func (s *Server) Routes() http.Handler {
	return NewRouter(s.assets, s.tracking, s.verifier)
}
