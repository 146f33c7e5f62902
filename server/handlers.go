package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-voz/detection"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// detectURLRequest is the JSON body variant of the detect endpoint
type detectURLRequest struct {
	AudioURL  string  `json:"audio_url" binding:"required"`
	RequestID *string `json:"request_id"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"model_version": s.detector.ModelVersion(),
	})
}

// detectVoice accepts either a multipart upload in field "file" or a JSON
// body naming an audio_url.
func (s *Server) detectVoice(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)

	var (
		res *detection.Result
		err error
	)

	switch c.ContentType() {
	case gin.MIMEMultipartPOSTForm:
		res, err = s.detectUpload(c)
	case gin.MIMEJSON:
		var req detectURLRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			respondBadRequest(c, "audio_url is required in JSON body")
			return
		}
		res, err = s.detector.DetectURL(c.Request.Context(), req.AudioURL, req.RequestID)
	default:
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType,
			newErrorResponse(codeUnsupportedContentType, "Unsupported Content-Type"))
		return
	}

	if err != nil {
		respondWithError(c, err)
		return
	}

	if !s.config.IncludeChunks {
		res.Chunks = nil
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) detectUpload(c *gin.Context) (*detection.Result, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, transcode.InvalidAudio(fmt.Sprintf("audio file exceeds %d bytes", s.maxUpload), err)
		}
		return nil, badRequest("No file uploaded")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, badRequest("Uploaded file could not be read")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, badRequest("Uploaded file could not be read")
	}

	var requestID *string
	if id, ok := c.GetPostForm("request_id"); ok && id != "" {
		requestID = &id
	}

	return s.detector.DetectUpload(c.Request.Context(), fh.Filename, data, requestID)
}
