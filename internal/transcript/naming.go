package transcript

import (
	"path"
	"regexp"
	"strings"
)

var resultSuffixRe = regexp.MustCompile(`_result-\d+$`)

// OutputName derives the transcript object name from an input object's
// name: recognizer-added suffixes are stripped and the extension becomes
// .txt. Directory parts of a key are ignored; callers re-prefix the result.
//
//	clip.wav                          -> clip.txt
//	clip_transcript_9f3a_result-2.json -> clip.txt
func OutputName(name string) string {
	base := path.Base(name)
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = resultSuffixRe.ReplaceAllString(stem, "")
	if i := strings.Index(stem, "_transcript"); i >= 0 {
		stem = stem[:i]
	}
	if stem == "" || stem == "." {
		stem = "transcript"
	}
	return stem + ".txt"
}
