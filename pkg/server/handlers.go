package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/pipeline"
	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.core.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}
	info, err := s.core.CreateTenant(c.Request.Context(), types.TenantID(req.ID), tenant.IsolationPolicy(req.IsolationPolicy))
	if err != nil {
		status, body := renderError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleListTenants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tenants": s.core.ListTenants(c.Request.Context())})
}

func (s *Server) handleDescribeTenant(c *gin.Context) {
	info, err := s.core.DescribeTenant(c.Request.Context(), types.TenantID(c.Param("id")))
	if err != nil {
		status, body := renderError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleDeleteTenant(c *gin.Context) {
	force := c.Query("force") == "true"
	if err := s.core.DeleteTenant(c.Request.Context(), types.TenantID(c.Param("id")), force); err != nil {
		status, body := renderError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, deletedResponse{Deleted: true})
}

func (s *Server) tenantParam(c *gin.Context) types.TenantID {
	return types.TenantID(c.Param("tenant"))
}

func (s *Server) handleUpsertNode(c *gin.Context) {
	var req upsertNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		id, err := s.core.UpsertNode(ctx, rc.TenantID, req.toNode())
		if err != nil {
			return err
		}
		rc.FinalResponse = idResponse{SystemID: id.String()}
		return nil
	})
}

func (s *Server) handleGetNode(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: "invalid node id"})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		node, err := s.core.GetNode(ctx, rc.TenantID, id)
		if err != nil {
			return err
		}
		if node == nil {
			return types.NewNotFoundError("node %s not found", id)
		}
		rc.FinalResponse = node
		return nil
	})
}

func (s *Server) handleGetNodeByAlias(c *gin.Context) {
	alias := c.Param("alias")
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		id, node, err := s.core.GetNodeByAlias(ctx, rc.TenantID, alias)
		if err != nil {
			return err
		}
		if node == nil {
			return types.NewNotFoundError("alias %q not found", alias)
		}
		rc.FinalResponse = gin.H{"system_id": id.String(), "node": node}
		return nil
	})
}

func (s *Server) handleDeleteNode(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: "invalid node id"})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		deleted, err := s.core.DeleteNode(ctx, rc.TenantID, id)
		if err != nil {
			return err
		}
		rc.FinalResponse = deletedResponse{Deleted: deleted}
		return nil
	})
}

func (s *Server) handleUpsertEdge(c *gin.Context) {
	var req upsertEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		edge, err := req.toEdge()
		if err != nil {
			return err
		}
		id, err := s.core.UpsertEdge(ctx, rc.TenantID, edge)
		if err != nil {
			return err
		}
		rc.FinalResponse = idResponse{SystemID: id.String()}
		return nil
	})
}

func (s *Server) handleDeleteEdge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: "invalid edge id"})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		deleted, err := s.core.DeleteEdge(ctx, rc.TenantID, id)
		if err != nil {
			return err
		}
		rc.FinalResponse = deletedResponse{Deleted: deleted}
		return nil
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		q, err := req.toQuery()
		if err != nil {
			return err
		}
		paths, err := s.core.Query(ctx, rc.TenantID, q)
		if err != nil {
			return err
		}
		rc.FinalResponse = gin.H{"paths": paths, "count": len(paths)}
		return nil
	})
}

func (s *Server) handleExtract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		env, err := s.core.ExtractKnowledge(ctx, rc.TenantID, req.toContext())
		if err != nil {
			return err
		}
		s.core.RecordExtraction(rc.RequestID.String(), rc.TenantID, env)
		rc.FinalResponse = env
		return nil
	})
}

func (s *Server) handleExtractAndMerge(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: string(types.KindValidation), Message: err.Error()})
		return
	}
	s.runPipeline(c, s.tenantParam(c), func(ctx context.Context, rc *pipeline.RequestContext) error {
		env, result, err := s.core.ExtractAndMerge(ctx, rc.TenantID, req.toContext())
		if env != nil {
			s.core.RecordExtraction(rc.RequestID.String(), rc.TenantID, env)
		}
		if err != nil {
			return err
		}
		rc.FinalResponse = gin.H{"envelope": env, "result": result}
		return nil
	})
}
