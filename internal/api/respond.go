// Package api is the HTTP and websocket surface. Handlers parse the
// request, take the Principal that AuthMiddleware stored, and hand both to
// the service layer. They hold no business rules of their own.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/models"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every failed response:
//
//	{"error": {"kind": "authorization", "code": "NOT_MEMBER", "message": "..."}}
//
// kind is coarse and stable; code is the machine-readable reason.
type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError translates err into a response.
//
// Why only one place that does this?
//   - Service errors already carry a Kind. Mapping Kind to status here
//     means every handler answers the same way for the same failure.
//   - Anything that is not an *apperr.Error is a bug or an infrastructure
//     failure. The client gets a generic 500 and the details go to the log,
//     never to the response.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		c.AbortWithStatusJSON(apperr.HTTPStatus(e.Kind), gin.H{"error": errorBody{
			Kind:    string(e.Kind),
			Code:    string(e.Code),
			Message: e.Message,
		}})
		return
	}

	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorBody{
		Kind:    "internal",
		Code:    "INTERNAL",
		Message: "internal error",
	}})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorBody{
		Kind:    string(apperr.KindValidation),
		Code:    string(apperr.CodeInvalidInput),
		Message: message,
	}})
}

// uuidParam reads a path parameter as a UUID, answering 400 when it is not.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// pageQuery reads ?limit=&offset=. Missing values fall back to the
// defaults applied by models.Page.Normalize.
func pageQuery(c *gin.Context) (models.Page, bool) {
	var page models.Page
	for _, q := range []struct {
		name string
		dst  *int
	}{
		{"limit", &page.Limit},
		{"offset", &page.Offset},
	} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, "invalid '"+q.name+"' parameter")
			return models.Page{}, false
		}
		*q.dst = v
	}
	return page, true
}

// cursorQuery reads the message cursor ?before=<id>&limit=<n>.
//
// Cursor-based pagination:
//   - "before" = message ID. "Give me messages older than this." 0 = start from latest.
//   - "limit"  = how many to return. The service clamps it to its maximum.
func cursorQuery(c *gin.Context) (before int64, limit int, ok bool) {
	var err error
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			badRequest(c, "invalid 'before' parameter")
			return 0, 0, false
		}
	}
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			badRequest(c, "invalid 'limit' parameter")
			return 0, 0, false
		}
	}
	return before, limit, true
}
