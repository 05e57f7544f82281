package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/taskdesk-api/internal/middleware"
	apperrors "github.com/jwalitptl/taskdesk-api/pkg/errors"
	"github.com/jwalitptl/taskdesk-api/pkg/httputil"
)

var errNoActor = errors.New("no authenticated actor")

// Actor returns the authenticated actor, answering 401 when there is none.
func Actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.ActorID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errNoActor))
		return uuid.Nil, false
	}
	return id, true
}

// UUIDParam parses the named path parameter, answering 400 when malformed.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON binds and validates the request body, answering 400 on failure.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.DescribeBindError(err), err))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters, answering 400 on failure.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(middleware.DescribeBindError(err), err))
		return false
	}
	return true
}
