package transcript

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "single word punctuation",
			in:   "hello comma how are you question mark",
			want: "hello, how are you?",
		},
		{
			name: "two word phrase",
			in:   "great exclamation point",
			want: "great!",
		},
		{
			name: "exclamation mark phrase",
			in:   "watch out exclamation mark",
			want: "watch out!",
		},
		{
			name: "full sentence",
			in:   "go to the store comma then come back period",
			want: "go to the store, then come back.",
		},
		{
			name: "colon and semicolon",
			in:   "two items colon apples semicolon oranges",
			want: "two items: apples; oranges",
		},
		{
			name: "escape keeps punctuation word",
			in:   "say literal comma now",
			want: "say comma now",
		},
		{
			name: "escape before phrase keeps both words",
			in:   "stop literal question mark now",
			want: "stop question mark now",
		},
		{
			name: "escape consumes only one conversion",
			in:   "literal period period",
			want: "period.",
		},
		{
			name: "escape before plain word stays",
			in:   "this is literal text",
			want: "this is literal text",
		},
		{
			name: "escape at end of input stays",
			in:   "say literal",
			want: "say literal",
		},
		{
			name: "punctuation at start stands alone",
			in:   "period hello",
			want: ". hello",
		},
		{
			name: "phrase at start stands alone",
			in:   "question mark",
			want: "?",
		},
		{
			name: "consecutive punctuation chains",
			in:   "hello comma comma",
			want: "hello,,",
		},
		{
			name: "case insensitive words",
			in:   "Hello Comma world Period",
			want: "Hello, world.",
		},
		{
			name: "case insensitive escape",
			in:   "say Literal Comma now",
			want: "say Comma now",
		},
		{
			name: "whitespace collapse",
			in:   "hello\n\nworld \t again",
			want: "hello world again",
		},
		{
			name: "space before existing symbol removed",
			in:   "hello , world",
			want: "hello, world",
		},
		{
			name: "space inserted after existing symbol",
			in:   "hello,world",
			want: "hello, world",
		},
		{
			name: "phrase words alone are plain text",
			in:   "leave a mark on the exclamation list",
			want: "leave a mark on the exclamation list",
		},
		{
			name: "empty input becomes placeholder",
			in:   "",
			want: Placeholder,
		},
		{
			name: "whitespace only becomes placeholder",
			in:   " \n\t  ",
			want: Placeholder,
		},
		{
			name: "placeholder passes through",
			in:   Placeholder,
			want: Placeholder,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// Re-running the normalizer on converted output changes nothing: symbols
// are never re-matched as words.
func TestNormalizeIdempotentOnConvertedOutput(t *testing.T) {
	inputs := []string{
		"hello comma how are you question mark",
		"great exclamation point",
		"literal period period",
		"period hello",
		"hello comma comma",
		"go to the store comma then come back period",
		"already, punctuated. text!",
		"hello,world",
		"done . )",
		"two items colon apples semicolon oranges",
		Placeholder,
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

// The escape emits bare punctuation words, so its output is the one kind
// of text a second pass does convert. Each transcript is normalized once.
func TestNormalizeEscapedOutputConvertsAgain(t *testing.T) {
	once := Normalize("say literal comma now")
	if once != "say comma now" {
		t.Fatalf("first pass = %q", once)
	}
	if twice := Normalize(once); twice != "say, now" {
		t.Errorf("second pass = %q, want %q", twice, "say, now")
	}
}

func TestNormalizeSymbolBeforeClosingBracket(t *testing.T) {
	// No space is forced between a symbol and a closing bracket or quote.
	if got := Normalize(`he said "stop."`); got != `he said "stop."` {
		t.Errorf("got %q", got)
	}
	if got := Normalize("done.)"); got != "done.)" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeConcurrent(t *testing.T) {
	// The normalizer holds no state; concurrent use over unrelated inputs
	// must be safe.
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				if got := Normalize("hello comma world period"); got != "hello, world." {
					t.Errorf("got %q", got)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
