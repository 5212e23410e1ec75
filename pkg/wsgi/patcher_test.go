package wsgi

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appSource = "from myapp import app as application\n"

func fixedNow() time.Time {
	return time.Date(2024, time.March, 5, 14, 7, 33, 0, time.UTC)
}

func entryPoint(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/var/www", 0o755))
	require.NoError(t, afero.WriteFile(fs, DefaultPath, []byte(appSource), 0o644))

	return fs
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	snippet := Snippet("/srv/app")

	assert.True(t, strings.HasPrefix(snippet, Marker+"\n"))
	assert.Contains(t, snippet, `activate_this = "/srv/app/bin/activate_this.py"`)
	assert.Contains(t, snippet, "exec(open(activate_this).read(), dict(__file__=activate_this))")
}

func TestPatch(t *testing.T) {
	t.Parallel()

	fs := entryPoint(t)
	patcher := New(Options{Backup: true, Now: fixedNow}, fs, nil)

	res, err := patcher.Patch(context.Background(), "/srv/app")
	require.NoError(t, err)

	assert.Equal(t, StatusPatched, res.Status)
	assert.Equal(t, "/var/www/wsgi.py.2024-03-05-14-07.bak", res.Backup)

	backup, err := afero.ReadFile(fs, res.Backup)
	require.NoError(t, err)
	assert.Equal(t, appSource, string(backup))

	patched, err := afero.ReadFile(fs, DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, Snippet("/srv/app")+appSource, string(patched))
}

func TestPatch_Idempotent(t *testing.T) {
	t.Parallel()

	fs := entryPoint(t)
	patcher := New(Options{}, fs, nil)

	_, err := patcher.Patch(context.Background(), "/srv/app")
	require.NoError(t, err)

	first, err := afero.ReadFile(fs, DefaultPath)
	require.NoError(t, err)

	res, err := patcher.Patch(context.Background(), "/srv/app")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyPatched, res.Status)

	second, err := afero.ReadFile(fs, DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.Equal(t, 1, strings.Count(string(second), Marker))
}

func TestPatch_Fake(t *testing.T) {
	t.Parallel()

	fs := entryPoint(t)

	res, err := New(Options{Fake: true, Backup: true}, fs, nil).Patch(context.Background(), "/srv/app")
	require.NoError(t, err)

	assert.Equal(t, StatusPreview, res.Status)
	assert.Empty(t, res.Backup)
	assert.Contains(t, res.Diff, "+ "+Marker+"\n")
	assert.Contains(t, res.Diff, "  "+appSource)

	unchanged, err := afero.ReadFile(fs, DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, appSource, string(unchanged))
}

func TestPatch_MissingEntryPoint(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Path: "/nowhere/wsgi.py"}, afero.NewMemMapFs(), nil).Patch(context.Background(), "/srv/app")
	require.ErrorIs(t, err, ErrEntryPointMissing)
}

func TestRenderDiff(t *testing.T) {
	t.Parallel()

	diff := RenderDiff("a\nb\n", "a\nc\n")

	assert.Equal(t, "  a\n- b\n+ c\n", diff)
}
