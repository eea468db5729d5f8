package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/palmistry/internal/common"
)

func (a *API) Status(c *gin.Context) {
	view, err := a.analyses.Status(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, view)
}

func (a *API) GetAnalysis(c *gin.Context) {
	d, err := a.analyses.Get(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (a *API) ListAnalyses(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.fail(c, common.NewAppError("INVALID_LIMIT", "limit must be a non-negative integer", common.ErrInvalidInput))
			return
		}
		limit = n
	}
	jobs, err := a.analyses.List(c.Request.Context(), ownerID(c), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": jobs})
}

func (a *API) Dashboard(c *gin.Context) {
	stats, err := a.analyses.Dashboard(c.Request.Context(), ownerID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type askRequest struct {
	Question string `json:"question"`
}

func (a *API) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, common.NewAppError("BAD_BODY", "body must be {\"question\": \"...\"}", common.ErrInvalidInput))
		return
	}
	f, err := a.analyses.Ask(c.Request.Context(), ownerID(c), c.Param("id"), req.Question)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (a *API) Questions(c *gin.Context) {
	list, err := a.analyses.Questions(c.Request.Context(), ownerID(c), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": list})
}
