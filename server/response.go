package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-voz/transcode"
)

// Error codes beyond the audio taxonomy
const (
	codeBadRequest             = "BAD_REQUEST"
	codeUnauthorized           = "UNAUTHORIZED"
	codeUnsupportedContentType = "UNSUPPORTED_CONTENT_TYPE"
	codeInternal               = "INTERNAL_ERROR"
)

// ErrorBody is the code and message of a failed request
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the envelope of every failed request
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

func newErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: message}}
}

// requestError is a malformed request, answered with 400 BAD_REQUEST
type requestError struct {
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{message: message}
}

// respondWithError maps taxonomy errors to their status; anything else is a 500
// with a generic message.
func respondWithError(c *gin.Context, err error) {
	var rerr *requestError
	if errors.As(err, &rerr) {
		respondBadRequest(c, rerr.message)
		return
	}
	var terr *transcode.Error
	if errors.As(err, &terr) {
		c.AbortWithStatusJSON(terr.HTTPStatus(), newErrorResponse(string(terr.Kind), terr.Message))
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(codeInternal, "Internal server error"))
}

func respondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, newErrorResponse(codeBadRequest, message))
}
