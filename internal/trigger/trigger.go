// Package trigger turns storage activity into pipeline work. Sources
// (filesystem watcher, kafka bucket notifications, HTTP pushes) produce
// ObjectEvents; the Dispatcher classifies them against the bucket layout
// and hands them to the pipeline on a bounded worker pool.
package trigger

import (
	"context"
	"path"
	"strings"
)

// Event sources, recorded on ObjectEvent for logs.
const (
	SourceWatcher = "watcher"
	SourceKafka   = "kafka"
	SourceHTTP    = "http"
)

// ObjectEvent describes one object-created notification.
type ObjectEvent struct {
	Store       string `json:"store"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Generation  string `json:"generation,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Handler is the pipeline seen from the trigger side. Returned errors are
// transient failures; the source decides whether to retry or redeliver.
type Handler interface {
	HandleAudio(ctx context.Context, ev ObjectEvent) error
	HandleResult(ctx context.Context, ev ObjectEvent) error
}

// Kind is the dispatcher's classification of an event.
type Kind int

const (
	KindIgnore Kind = iota
	KindAudio
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindResult:
		return "result"
	default:
		return "ignore"
	}
}

// Routes maps bucket prefixes to event kinds. Keys outside both prefixes,
// including the pipeline's own transcript and holding areas, are ignored.
type Routes struct {
	RecordingsPrefix string
	ResultsPrefix    string
}

// Classify decides what an event means. Audio needs the recordings prefix
// plus an audio extension or content type; results need the results prefix
// plus a .json extension.
func (r Routes) Classify(ev ObjectEvent) Kind {
	switch {
	case r.RecordingsPrefix != "" && strings.HasPrefix(ev.Key, r.RecordingsPrefix) && isAudio(ev.Key, ev.ContentType):
		return KindAudio
	case r.ResultsPrefix != "" && strings.HasPrefix(ev.Key, r.ResultsPrefix) && strings.EqualFold(path.Ext(ev.Key), ".json"):
		return KindResult
	default:
		return KindIgnore
	}
}

var audioExts = map[string]struct{}{
	".3gp":  {},
	".aac":  {},
	".aif":  {},
	".aiff": {},
	".amr":  {},
	".caf":  {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".mp4":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
	".webm": {},
}

func isAudio(key, contentType string) bool {
	if _, ok := audioExts[strings.ToLower(path.Ext(key))]; ok {
		return true
	}
	return strings.HasPrefix(contentType, "audio/")
}
