package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/palmistry/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportXLSX streams the owner's analyses as a workbook. Optional from/to
// query values are YYYY-MM-DD.
func (a *API) ExportXLSX(c *gin.Context) {
	from, err := parseDay(c.Query("from"), "from")
	if err != nil {
		a.fail(c, err)
		return
	}
	to, err := parseDay(c.Query("to"), "to")
	if err != nil {
		a.fail(c, err)
		return
	}

	xlsx, err := a.export.ExportAnalysesXLSX(c.Request.Context(), ownerID(c), from, to)
	if err != nil {
		a.logger.Error("export.xlsx.failed", "owner_id", ownerID(c), "err", err)
		a.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="palm-analyses.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, xlsx)
}

func parseDay(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, common.NewAppError("INVALID_DATE", field+" must be YYYY-MM-DD", common.ErrInvalidInput)
	}
	return &t, nil
}
