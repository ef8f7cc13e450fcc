package persona

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePersona(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file uses default", func(t *testing.T) {
		p, err := Load(filepath.Join(dir, "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), p)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "lois.yaml")
		writePersona(t, path, "name: Lois\nsystem_instruction: Be Lois.\nprompt_template: \"Lois says: {message}\"\n")

		p, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Lois", p.Name)
		assert.Equal(t, "Be Lois.", p.SystemInstruction)
		assert.Equal(t, "Lois says: hi", p.Render("hi"))
	})

	t.Run("template without placeholder", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		writePersona(t, path, "name: Bad\nprompt_template: no slot here\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("empty persona", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		writePersona(t, path, "name: Nobody\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "broken.yaml")
		writePersona(t, path, "name: [unclosed\n")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestDefaultRendersPrompt(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Contains(t, p.Render("what's up"), "Here's the message: what's up")

	static := p.Static()
	assert.Equal(t, p.SystemInstruction, static.SystemInstruction())
	assert.Equal(t, p.Render("x"), static.Render("x"))
}

func TestWatcherReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	writePersona(t, path, "name: Peter\nsystem_instruction: v1\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", w.SystemInstruction())

	writePersona(t, path, "name: Peter\nsystem_instruction: v2\n")
	require.NoError(t, w.Reload())
	assert.Equal(t, "v2", w.SystemInstruction())
	assert.Equal(t, 1, w.Reloads())

	// A broken file keeps the previous persona.
	writePersona(t, path, "name: [oops\n")
	assert.Error(t, w.Reload())
	assert.Equal(t, "v2", w.SystemInstruction())
	assert.Equal(t, 1, w.Reloads())
}

func TestWatcherRunPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	writePersona(t, path, "name: Peter\nsystem_instruction: before\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Keep writing until the watcher is registered and sees a change.
	require.Eventually(t, func() bool {
		writePersona(t, path, "name: Peter\nsystem_instruction: after\n")
		return w.SystemInstruction() == "after"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
