package textutil

import (
	"reflect"
	"testing"
)

func TestNormalizeStringMap(t *testing.T) {
	t.Run("trims keys and values", func(t *testing.T) {
		input := map[string]string{
			" size ": " M ",
			"color":  " navy ",
			"empty":  " ",
			" ":      "ignored",
		}
		expected := map[string]string{"size": "M", "color": "navy", "empty": ""}
		if actual := NormalizeStringMap(input); !reflect.DeepEqual(actual, expected) {
			t.Fatalf("expected %#v got %#v", expected, actual)
		}
	})

	t.Run("returns nil for nil or empty input", func(t *testing.T) {
		if NormalizeStringMap(nil) != nil || NormalizeStringMap(map[string]string{}) != nil {
			t.Fatalf("expected nil")
		}
	})
}

func TestPlainText(t *testing.T) {
	got := PlainText(`  <b>Great</b> fit <script>alert(1)</script> `, 0)
	if got != "Great fit" {
		t.Fatalf("unexpected sanitised text %q", got)
	}
	if got := PlainText("héllo world", 5); got != "héllo" {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestPlainTextKeepsPunctuation(t *testing.T) {
	if got := PlainText(`It's "true" to size & soft`, 0); got != `It's "true" to size & soft` {
		t.Fatalf("unexpected text %q", got)
	}
}
