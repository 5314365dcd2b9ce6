// Package server assembles the chi router and the middleware stack
// shared by every API route.
package server

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// Server wraps the chi router together with the throttle and timeout
// settings applied to all routes
type Server struct {
	name string
	cors *cors.Cors
	mux  *chi.Mux

	maxParallelProcesses int
	timeout              time.Duration
}

// NewServer builds a router with the standard middleware stack: JSON
// content type, CORS, request ids, compression, panic recovery and
// request throttling.
func NewServer(name string,
	cors *cors.Cors,
	maxParallelProcesses int,
	timeout time.Duration,
) *Server {
	s := &Server{
		name:                 name,
		cors:                 cors,
		maxParallelProcesses: maxParallelProcesses,
		timeout:              timeout,
	}
	s.mux = chi.NewRouter()
	s.configMux()
	return s
}

func (s *Server) configMux() *chi.Mux {
	s.mux.Use(
		render.SetContentType(render.ContentTypeJSON),
		s.cors.Handler,
		middleware.RequestID,
		middleware.Compress(5),
		middleware.Recoverer, // panics become 500s, the process stays up
		middleware.StripSlashes,
		middleware.RealIP,
		middleware.Timeout(s.timeout),
		middleware.Throttle(s.maxParallelProcesses),
	)
	return s.mux
}

// Mux returns the underlying chi router
func (s *Server) Mux() *chi.Mux {
	return s.mux
}
