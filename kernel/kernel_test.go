package kernel

import "testing"

func TestErrorString(t *testing.T) {
	err := &Error{Module: "foo", Message: "error message"}

	want := "[foo] error message"
	if got := err.Error(); got != want {
		t.Fatalf("err.Error() = %q, want %q", got, want)
	}
}
