package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_RenderText(t *testing.T) {
	styles := DefaultStyles()

	assert.Contains(t, styles.Header.Render("Indexing"), "Indexing")
	assert.Contains(t, styles.Error.Render("parse failed"), "parse failed")
	assert.Contains(t, styles.Label.Render("speed"), "speed")
}

func TestNoColorStyles_PassThrough(t *testing.T) {
	styles := NoColorStyles()

	assert.Equal(t, "42 files", styles.Success.Render("42 files"))
	assert.Equal(t, "deferred", styles.Warning.Render("deferred"))
	assert.Equal(t, "●", styles.Active.Render("●"))
}

func TestGetStyles_NoColorSelectsPlain(t *testing.T) {
	styles := GetStyles(true)

	assert.Equal(t, "test", styles.Success.Render("test"))
}

func TestGetStyles_ColorKeepsText(t *testing.T) {
	// Exact ANSI output depends on the terminal profile; the text itself
	// must survive either way.
	styles := GetStyles(false)

	assert.Contains(t, styles.Success.Render("test"), "test")
}
