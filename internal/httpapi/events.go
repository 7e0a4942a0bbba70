package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tiroq/scribed/internal/trigger"
)

const maxEventBody = 1 << 20

// pubsubEnvelope is the push wrapper Google Pub/Sub puts around a storage
// notification. Message.Data carries the object metadata as base64 JSON.
type pubsubEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gcsObjectMeta is the slice of the storage object resource the pipeline
// needs. Size and generation arrive as decimal strings.
type gcsObjectMeta struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
	Generation  string `json:"generation"`
}

// handleEvent accepts one storage notification, either a raw object event
// or a Pub/Sub push envelope. Accepted work and not-a-create notifications
// both answer 204; only a transient pipeline failure answers 500, telling
// the pusher to redeliver.
func (s *Server) handleEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, ok, err := parsePushEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	ev.Source = trigger.SourceHTTP

	if err := s.dispatcher.Dispatch(c.Request.Context(), ev); err != nil {
		s.logger.Error().Err(err).Str("key", ev.Key).Msg("pushed event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event handling failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// parsePushEvent decodes body into an ObjectEvent. ok is false for valid
// notifications that describe something other than an object creation.
func parsePushEvent(body []byte) (trigger.ObjectEvent, bool, error) {
	var env pubsubEnvelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Message.Data) > 0 {
		if t := env.Message.Attributes["eventType"]; t != "" && t != "OBJECT_FINALIZE" {
			return trigger.ObjectEvent{}, false, nil
		}
		var meta gcsObjectMeta
		if err := json.Unmarshal(env.Message.Data, &meta); err != nil {
			return trigger.ObjectEvent{}, false, fmt.Errorf("invalid pubsub payload: %w", err)
		}
		if meta.Name == "" {
			return trigger.ObjectEvent{}, false, errors.New("pubsub payload missing object name")
		}
		size, _ := strconv.ParseInt(meta.Size, 10, 64)
		return trigger.ObjectEvent{
			Store:       meta.Bucket,
			Key:         meta.Name,
			ContentType: meta.ContentType,
			Size:        size,
			Generation:  meta.Generation,
			EventID:     env.Message.MessageID,
		}, true, nil
	}

	var ev trigger.ObjectEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return trigger.ObjectEvent{}, false, errors.New("unrecognized notification payload")
	}
	if ev.Key == "" {
		return trigger.ObjectEvent{}, false, errors.New("event key is required")
	}
	return ev, true, nil
}
