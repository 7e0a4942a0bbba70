package media

import (
	"regexp"
	"strconv"
	"time"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})(?:\.(\d+))?`)
	silenceRe  = regexp.MustCompile(`silence_duration:\s*([0-9]+(?:\.[0-9]+)?)`)
)

// parseDuration scrapes "Duration: HH:MM:SS.cc" out of ffmpeg's banner.
// "Duration: N/A" does not match and reports unknown.
func parseDuration(out string) (time.Duration, bool) {
	m := durationRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	d := time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
	if m[4] != "" {
		frac, err := strconv.ParseFloat("0."+m[4], 64)
		if err == nil {
			d += time.Duration(frac * float64(time.Second))
		}
	}
	return d, true
}

// parseSilenceRuns collects every silence_duration the silencedetect filter
// logged, in encounter order.
func parseSilenceRuns(out string) []time.Duration {
	var runs []time.Duration
	for _, m := range silenceRe.FindAllStringSubmatch(out, -1) {
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		runs = append(runs, time.Duration(secs*float64(time.Second)))
	}
	return runs
}
