package transcript

import "testing"

func TestOutputName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"clip.json", "clip.txt"},
		{"clip.wav", "clip.txt"},
		{"clip_transcript_9f3a_result-2.json", "clip.txt"},
		{"clip_transcript.json", "clip.txt"},
		{"clip_result-17.json", "clip.txt"},
		{"results/clip_transcript_9f3a_result-2.json", "clip.txt"},
		{"recordings/morning note.m4a", "morning note.txt"},
		{"noextension", "noextension.txt"},
		{"archive.tar.gz", "archive.tar.txt"},
		{"my_transcription_notes.json", "my.txt"},
		{"_transcript_9f3a.json", "transcript.txt"},
	}
	for _, tc := range cases {
		if got := OutputName(tc.in); got != tc.want {
			t.Errorf("OutputName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
