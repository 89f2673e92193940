package routing

import "testing"

func TestTagEngineGenerated(t *testing.T) {
	tagged := TagEngineGenerated("hello")
	if !IsEngineGenerated(tagged) {
		t.Fatal("tagged body must be recognized as engine generated")
	}
	if IsEngineGenerated("hello") {
		t.Fatal("plain body must not be recognized as engine generated")
	}
}

func TestTagEngineGeneratedIdempotent(t *testing.T) {
	once := TagEngineGenerated("hi")
	twice := TagEngineGenerated(once)
	if once != twice {
		t.Fatalf("tagging must be idempotent: %q != %q", once, twice)
	}
}

func TestIsEngineGeneratedEmptyBody(t *testing.T) {
	if IsEngineGenerated("") {
		t.Fatal("empty body is not engine generated")
	}
}
