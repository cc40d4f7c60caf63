package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("Kategorie für Gruppen", 9); got != "Kategorie..." {
		t.Errorf("got %s", got)
	}
	if got := Truncate("äöü", 2); got != "äö..." {
		t.Errorf("multibyte truncation = %q", got)
	}
}

func TestMarksToText(t *testing.T) {
	got := MarksToText("a <mark>group</mark> is a <mark>monoid</mark>", "[", "]")
	if got != "a [group] is a [monoid]" {
		t.Errorf("got %q", got)
	}
}
