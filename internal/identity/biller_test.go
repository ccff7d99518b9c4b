package identity

import "testing"

func TestDeriveBillerID(t *testing.T) {
	t.Run("derived from tax id", func(t *testing.T) {
		got, ok := DeriveBillerID("0105536000000", "")
		if !ok {
			t.Fatal("expected ok=true")
		}
		want := "010553600000099"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if len(got) != 15 {
			t.Errorf("length = %d, want 15", len(got))
		}
	})

	t.Run("override takes precedence", func(t *testing.T) {
		got, ok := DeriveBillerID("0105536000000", "123456789012345")
		if !ok {
			t.Fatal("expected ok=true")
		}
		if got != "123456789012345" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("tax id with formatting characters is digit-filtered", func(t *testing.T) {
		got, ok := DeriveBillerID("0-1055-36000-000", "")
		if !ok {
			t.Fatal("expected ok=true")
		}
		if got != "010553600000099" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("long tax id is truncated to 15 digits", func(t *testing.T) {
		got, ok := DeriveBillerID("12345678901234567890", "")
		if !ok {
			t.Fatal("expected ok=true")
		}
		if len(got) != 15 {
			t.Errorf("length = %d, want 15", len(got))
		}
	})

	t.Run("no tax id and no override fails", func(t *testing.T) {
		_, ok := DeriveBillerID("", "")
		if ok {
			t.Fatal("expected ok=false")
		}
	})
}
