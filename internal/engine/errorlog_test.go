package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorLog_KeepsInsertionOrder(t *testing.T) {
	log := newErrorLog(10)
	now := time.Now()

	log.add("a.go", "parse failed", now)
	log.add("b.go", "embed failed", now.Add(time.Second))

	entries := log.recent()
	assert.Len(t, entries, 2)
	assert.Equal(t, "a.go", entries[0].Path)
	assert.Equal(t, "b.go", entries[1].Path)
}

func TestErrorLog_EvictsOldestBeyondCapacity(t *testing.T) {
	log := newErrorLog(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		log.add(fmt.Sprintf("file%d.go", i), "boom", now)
	}

	entries := log.recent()
	assert.Len(t, entries, 3)
	assert.Equal(t, "file2.go", entries[0].Path)
	assert.Equal(t, "file4.go", entries[2].Path)
}

func TestErrorLog_ZeroCapacityGetsDefault(t *testing.T) {
	log := newErrorLog(0)
	now := time.Now()

	for i := 0; i < 60; i++ {
		log.add(fmt.Sprintf("file%d.go", i), "boom", now)
	}

	assert.Equal(t, 50, log.len())
}

func TestErrorLog_RecentReturnsCopy(t *testing.T) {
	log := newErrorLog(5)
	log.add("a.go", "boom", time.Now())

	entries := log.recent()
	entries[0].Path = "mutated.go"

	assert.Equal(t, "a.go", log.recent()[0].Path)
}
