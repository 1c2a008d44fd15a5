// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bidride/internal/apperr"
	"bidride/internal/http/middleware"
	"bidride/internal/modules/ride"
	"bidride/internal/types"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeAppError maps the error taxonomy onto status codes. A lost accept
// shows the generic "ride no longer available" with the specific reason
// alongside; other rejections show their own reason.
func writeAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	reason := apperr.ReasonOf(err)
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeError(c, http.StatusBadRequest, reason)
	case apperr.KindNotFound:
		writeError(c, http.StatusNotFound, reason)
	case apperr.KindRejected:
		msg := reason
		if apperr.OpOf(err) == ride.OpAccept || msg == "" {
			msg = ride.ReasonUnavailable
		}
		writeJSON(c, http.StatusConflict, errorResponse{Error: msg, Reason: reason})
	case apperr.KindUnauthorized:
		writeError(c, http.StatusUnauthorized, reason)
	case apperr.KindForbidden:
		writeError(c, http.StatusForbidden, reason)
	default:
		writeError(c, http.StatusInternalServerError, "please try again")
	}
}

// bindJSON decodes the body and writes a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing id")
		return "", false
	}
	return types.ID(id), true
}

type pointReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// point returns nil when either coordinate is absent.
func (p pointReq) point() *types.Point {
	if p.Lat == nil || p.Lng == nil {
		return nil
	}
	return &types.Point{Lat: *p.Lat, Lng: *p.Lng}
}

var errNoPoint = errors.New("lat and lng are required")
