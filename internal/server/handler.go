package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fmueller/voxserve/internal/logging"
	"github.com/fmueller/voxserve/internal/transcribe"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type transcribeRequest struct {
	Audio *string `json:"audio"`
}

type transcribeResponse struct {
	Transcription    string `json:"transcription"`
	DetectedLanguage string `json:"detectedLanguage"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	svc          Transcriber
	exposeDetail bool
	logger       *zap.Logger
}

func (h *handler) transcribe(c *gin.Context) {
	var req transcribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	if req.Audio == nil {
		h.fail(c, transcribe.Validation(transcribe.MsgNoAudio, transcribe.ErrNoAudio))
		return
	}

	// The model call outlives a disconnected client.
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := h.svc.TranscribeBase64(ctx, *req.Audio)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, transcribeResponse{Transcription: res.Text, DetectedLanguage: res.Language})
}

func (h *handler) fail(c *gin.Context, err error) {
	appErr := transcribe.Classify(err)

	log := logging.FromContext(c.Request.Context(), h.logger)
	fields := []zap.Field{
		zap.String("kind", appErr.Kind.String()),
		zap.Int("status", appErr.Status),
		zap.Error(err),
	}
	if appErr.Status >= http.StatusInternalServerError {
		log.Error("transcription request failed", fields...)
	} else {
		log.Warn("transcription request rejected", fields...)
	}

	c.AbortWithStatusJSON(appErr.Status, errorResponse{Error: appErr.Public(h.exposeDetail)})
}

func bindError(err error) *transcribe.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return transcribe.TooLarge(err)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field == "audio" {
		return transcribe.Validation(transcribe.MsgAudioNotString, err)
	}
	return transcribe.Validation(transcribe.MsgInvalidBody, err)
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
