// Package rqhttp exposes a small HTTP control surface over a queue
// namespace: job submission, progress/result lookup, job count, health,
// and read-only registry introspection.
//
// Grounded on the original Flask control server
// (_examples/original_source/controller/app.py), reimplemented with gin
// the way the pack's neurobridge-backend example structures its own
// handlers/response helpers
// (_examples/yungbote-neurobridge-backend/internal/handlers).
package rqhttp

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avarga/rqjobs/codec"
	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/store"
)

// Producer is the subset of *rqjobs.Producer the control surface needs,
// narrowed to a interface so handlers are testable without a live store.
type Producer interface {
	Post(ctx context.Context, msg any, callback *string, functions []string) (string, error)
}

// Registry is the subset of *rqjobs.Registry the control surface needs
// for GET /jobs/registry.
type Registry interface {
	Names() []string
}

// Server bundles the dependencies the control surface's handlers close
// over: the store (for count/progress/result lookups), a Producer (for
// job submission) and the Registry of the process's own worker(s).
type Server struct {
	Store    store.Store
	Keys     job.Keys
	Producer Producer
	Registry Registry
}

// New returns a Server ready to be wired into a gin.Engine via Routes.
func New(s store.Store, namespace string, p Producer, reg Registry) *Server {
	return &Server{Store: s, Keys: job.NewKeys(namespace), Producer: p, Registry: reg}
}

// Routes registers the control surface's endpoints on router.
func (srv *Server) Routes(router gin.IRouter) {
	router.GET("/healthz", srv.healthz)
	router.GET("/jobs/count", srv.jobCount)
	router.POST("/jobs", srv.postJob)
	router.GET("/jobs/:id/progress", srv.progress)
	router.GET("/jobs/:id/short_result", srv.shortResult)
	router.GET("/jobs/:id/result", srv.result)
	router.GET("/jobs/registry", srv.registry)
}

func (srv *Server) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (srv *Server) jobCount(c *gin.Context) {
	n, err := srv.Store.LLen(c.Request.Context(), srv.Keys.Pending())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "count_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

type postJobRequest struct {
	Msg       any      `json:"msg"`
	Callback  *string  `json:"callback"`
	Functions []string `json:"functions"`
}

func (srv *Server) postJob(c *gin.Context) {
	var req postJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	id, err := srv.Producer.Post(c.Request.Context(), req.Msg, req.Callback, req.Functions)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "post_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (srv *Server) progress(c *gin.Context) {
	rec, ok := srv.lookupRecord(c)
	if !ok {
		return
	}
	c.String(http.StatusOK, job.ProgressText(rec.Progress))
}

func (srv *Server) shortResult(c *gin.Context) {
	rec, ok := srv.lookupRecord(c)
	if !ok {
		return
	}
	if rec.ShortResult == nil {
		c.String(http.StatusOK, "[no result]")
		return
	}
	c.String(http.StatusOK, *rec.ShortResult)
}

func (srv *Server) result(c *gin.Context) {
	rec, ok := srv.lookupRecord(c)
	if !ok {
		return
	}
	if rec.Result == nil {
		c.String(http.StatusOK, "[no result]")
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": rec.Result})
}

func (srv *Server) registry(c *gin.Context) {
	if srv.Registry == nil {
		c.JSON(http.StatusOK, gin.H{"handlers": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"handlers": srv.Registry.Names()})
}

// lookupRecord fetches the record for the :id route param, writing a 404
// response and returning ok == false if it does not exist.
func (srv *Server) lookupRecord(c *gin.Context) (*job.Record, bool) {
	id := c.Param("id")
	data, err := srv.Store.Get(c.Request.Context(), srv.Keys.Progress(id))
	if err != nil {
		if errors.Is(err, store.ErrNil) {
			respondError(c, http.StatusNotFound, "job_not_found", err)
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return nil, false
	}
	rec, err := codec.Decode(data)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "decode_failed", err)
		return nil, false
	}
	return rec, true
}
