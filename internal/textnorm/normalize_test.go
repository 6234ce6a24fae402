package textnorm

import "testing"

func TestCollapseCJKSpaces(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"latin untouched", "hello world", "hello world"},
		{"kana collapsed", "こん にちは", "こんにちは"},
		{"han collapsed", "音声 認識", "音声認識"},
		{"multiple spaces collapsed", "こん   にちは", "こんにちは"},
		{"mixed keeps latin boundary", "これは Go です", "これは Go です"},
		{"cjk punctuation neighbor", "終わり 。", "終わり。"},
		{"hangul collapsed", "안녕 하세요", "안녕하세요"},
		{"leading space kept", " こんにちは", " こんにちは"},
		{"trailing space kept", "こんにちは ", "こんにちは "},
		{"empty", "", ""},
		{"no spaces fast path", "こんにちは", "こんにちは"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CollapseCJKSpaces(tc.in); got != tc.want {
				t.Errorf("CollapseCJKSpaces(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCollapseCJKSpaces_Idempotent(t *testing.T) {
	inputs := []string{
		"こん にちは 世界",
		"hello world",
		"これは Go の テスト です",
		"音声  認識   エンジン",
	}
	for _, in := range inputs {
		once := CollapseCJKSpaces(in)
		twice := CollapseCJKSpaces(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestNormalize_TerminalPunctuation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		in   string
		want string
	}{
		{"japanese gets maru", Options{Language: "ja", EnsurePunctuation: true}, "こんにちは", "こんにちは。"},
		{"chinese gets maru", Options{Language: "zh-CN", EnsurePunctuation: true}, "你好", "你好。"},
		{"english gets period", Options{Language: "en", EnsurePunctuation: true}, "hello", "hello."},
		{"existing mark kept", Options{Language: "ja", EnsurePunctuation: true}, "こんにちは。", "こんにちは。"},
		{"question mark kept", Options{Language: "en", EnsurePunctuation: true}, "really?", "really?"},
		{"disabled leaves bare", Options{Language: "ja"}, "こんにちは", "こんにちは"},
		{"empty stays empty", Options{Language: "ja", EnsurePunctuation: true}, "", ""},
		{"trims before appending", Options{Language: "en", EnsurePunctuation: true}, "  hello  ", "hello."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := New(tc.opts).Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalize_ZeroValue(t *testing.T) {
	var n Normalizer
	if got := n.Normalize(" こん にちは "); got != "こんにちは" {
		t.Errorf("zero-value Normalize = %q, want %q", got, "こんにちは")
	}
}
