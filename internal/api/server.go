// Package api wires the HTTP facade: route registration and the
// handlers that translate between JSON and the install/execute
// coordinators, dispatching coordinator errors to HTTP status codes.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"coderunner/internal/apierr"
	"coderunner/internal/execute"
	"coderunner/internal/httpmw"
	"coderunner/internal/install"
	"coderunner/internal/model"
	"coderunner/internal/obsmetrics"
	"coderunner/internal/registry"
	"github.com/gin-gonic/gin"
)

// Server holds the coordinators the HTTP facade delegates to.
type Server struct {
	registry *registry.Registry
	install  *install.Coordinator
	execute  *execute.Coordinator
}

// NewServer builds a Server.
func NewServer(reg *registry.Registry, installer *install.Coordinator, executor *execute.Coordinator) *Server {
	return &Server{registry: reg, install: installer, execute: executor}
}

// Router assembles the gin engine with the middleware stack and every
// route this service exposes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(httpmw.Recovery(), httpmw.RequestID(), httpmw.Logger(), obsmetrics.GinMiddleware())

	r.GET("/health", s.health)
	r.GET("/metrics", obsmetrics.Handler())

	r.GET("/runtimes", s.listRuntimes)
	r.POST("/runtimes", s.installRuntime)
	r.DELETE("/runtimes/:id", s.deleteRuntime)
	r.POST("/update", s.updateIndex)
	r.POST("/execute", s.executeSubmission)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "Up and running\n")
}

func (s *Server) listRuntimes(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

func (s *Server) installRuntime(c *gin.Context) {
	var req model.AddRuntimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.install.Install(c.Request.Context(), req)
	if err != nil {
		respondCoordinatorError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) deleteRuntime(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a non-negative integer"})
		return
	}

	if err := s.install.Delete(c.Request.Context(), uint32(id)); err != nil {
		respondCoordinatorError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) updateIndex(c *gin.Context) {
	resp, err := s.install.UpdateIndex(c.Request.Context())
	if err != nil {
		respondCoordinatorError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) executeSubmission(c *gin.Context) {
	isProject := c.Query("is_project") == "true"

	var req model.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.execute.Execute(c.Request.Context(), req, isProject)
	if err != nil {
		respondCoordinatorError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// respondCoordinatorError maps a coordinator error to the HTTP status
// the facade contract promises: validation failures are 400, unknown
// ids are 404, a package manager failure is 400 during install (bad
// user-supplied nix shell) but 500 during update (the shared index is
// broken, not the caller), and everything else is an opaque server
// fault.
func respondCoordinatorError(c *gin.Context, err error) {
	var verr *apierr.ValidationError
	var nferr *apierr.NotFoundError
	var pmErr *apierr.PackageManagerFailure

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case errors.As(err, &nferr):
		c.JSON(http.StatusNotFound, gin.H{"error": nferr.Message})
	case errors.As(err, &pmErr):
		status := http.StatusBadRequest
		if pmErr.DuringUpdate {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": pmErr.Error(), "stdout": pmErr.Stdout, "stderr": pmErr.Stderr})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
