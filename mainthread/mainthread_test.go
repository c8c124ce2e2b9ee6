package mainthread

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Captured in TestMain, which the testing package runs on the main goroutine.
var markerOnMain bool

func TestMain(m *testing.M) {
	_, markerOnMain = New()
	os.Exit(m.Run())
}

func TestNew_OnMainGoroutine(t *testing.T) {
	assert.True(t, markerOnMain, "New MUST succeed on the main goroutine")
}

func TestNew_OffMainGoroutine(t *testing.T) {
	// Test functions run on their own goroutines, never the main one.
	_, ok := New()
	assert.False(t, ok, "New MUST fail off the main goroutine")
	assert.False(t, Is())
}

func TestNew_OffMainFromSpawnedGoroutine(t *testing.T) {
	res := make(chan bool, 1)
	go func() {
		_, ok := New()
		res <- ok
	}()
	assert.False(t, <-res)
}
