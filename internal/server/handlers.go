package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/solirona/internal/simulation"
)

type stepRequest struct {
	Count *int `json:"count"`
}

type rotateRequest struct {
	ID    string   `json:"id"`
	Angle *float64 `json:"angle"`
}

type reconnectRequest struct {
	ConnectProb *float64 `json:"connect_prob" binding:"required"`
}

type populationRequest struct {
	Count *int `json:"count" binding:"required"`
}

type driverRequest struct {
	Running *bool `json:"running" binding:"required"`
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// throttle rejects a client that exceeds the command rate for action.
func (s *Server) throttle(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.limiter.Check(c.ClientIP() + "|" + action); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

func handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.State())
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handleStep(c *gin.Context) {
	var req stepRequest
	if err := bindOptional(c, &req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	count := 1
	if req.Count != nil {
		count = *req.Count
	}
	if err := s.engine.Tick(count); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handleParams(c *gin.Context) {
	var req simulation.ParamUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if req.Empty() {
		abortBadRequest(c, "no parameters given")
		return
	}
	if err := s.engine.SetParameters(req); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Params())
}

func (s *Server) handleRotate(c *gin.Context) {
	var req rotateRequest
	if err := bindOptional(c, &req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	var err error
	if req.ID != "" {
		err = s.engine.RotatePhase(req.ID, req.Angle)
	} else {
		err = s.engine.RotateAll(req.Angle)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddNode(c *gin.Context) {
	id, err := s.engine.AddEntity()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// handleRemoveNode removes the highest id; an empty graph is not an error.
func (s *Server) handleRemoveNode(c *gin.Context) {
	id, ok := s.engine.RemoveEntity()
	c.JSON(http.StatusOK, gin.H{"id": id, "removed": ok})
}

func (s *Server) handleRemoveNodeByID(c *gin.Context) {
	id := c.Param("id")
	if err := s.engine.RemoveEntityByID(id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "removed": true})
}

func (s *Server) handleCollapse(c *gin.Context) {
	id := c.Param("id")
	value, fresh, err := s.engine.Collapse(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "value": value, "collapsed_now": fresh})
}

func (s *Server) handleReconnect(c *gin.Context) {
	var req reconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if err := s.engine.Reconnect(*req.ConnectProb); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handlePopulation(c *gin.Context) {
	var req populationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	added, removed, err := s.engine.SetPopulation(*req.Count)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": nonNil(added), "removed": nonNil(removed)})
}

func (s *Server) handleDriver(c *gin.Context) {
	var req driverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	var changed bool
	if *req.Running {
		changed = s.engine.Start(s.cfg.TickInterval)
	} else {
		changed = s.engine.Stop()
	}
	c.JSON(http.StatusOK, gin.H{"running": s.engine.Running(), "changed": changed})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
