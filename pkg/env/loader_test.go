package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultLoader_Load(t *testing.T) {
	path := writeEnv(t, `# comment
PH_FOO=bar
PH_QUOTED="quoted value"
export PH_EXPORTED=yes
PH_EMPTY=
not a pair
`)
	l := NewLoader()
	require.NoError(t, l.Load(path))

	assert.Equal(t, "bar", l.Get("PH_FOO"))
	assert.Equal(t, "quoted value", l.Get("PH_QUOTED"))
	assert.Equal(t, "yes", l.Get("PH_EXPORTED"))

	_, ok := l.Lookup("PH_EMPTY")
	assert.False(t, ok, "empty values count as unset")
	assert.Len(t, l.All(), 4)
}

func TestDefaultLoader_Load_FileNotFound(t *testing.T) {
	assert.Error(t, NewLoader().Load("/nonexistent/.env"))
}

func TestDefaultLoader_OSTakesPrecedence(t *testing.T) {
	l := NewLoader()
	l.vars["PH_PRECEDENCE"] = "from_file"
	assert.Equal(t, "from_file", l.Get("PH_PRECEDENCE"))

	t.Setenv("PH_PRECEDENCE", "from_os")
	assert.Equal(t, "from_os", l.Get("PH_PRECEDENCE"))
}

func TestDefaultLoader_GetRequired(t *testing.T) {
	l := NewLoader()
	_, err := l.GetRequired("PH_MISSING")
	assert.ErrorContains(t, err, "PH_MISSING")

	l.vars["PH_PRESENT"] = "v"
	v, err := l.GetRequired("PH_PRESENT")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestDefaultLoader_GetWithDefault(t *testing.T) {
	l := NewLoader()
	assert.Equal(t, "fallback", l.GetWithDefault("PH_MISSING", "fallback"))
}

func TestDefaultLoader_GetAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "AIza-test")
	l := NewLoaderWithMappings(map[string]string{"Palm": "PALM_KEY"})

	assert.Equal(t, "AIza-test", l.GetAPIKey("gemini"))
	assert.Equal(t, "AIza-test", l.GetAPIKey("Google"))
	assert.Equal(t, "PALM_KEY", l.mappings["palm"])

	t.Setenv("OTHER_API_KEY", "other")
	assert.Equal(t, "other", l.GetAPIKey("other"))
}

func TestDefaultLoader_Set(t *testing.T) {
	l := NewLoader()
	t.Setenv("PH_SET", "")
	require.NoError(t, l.Set("PH_SET", "value"))
	assert.Equal(t, "value", os.Getenv("PH_SET"))
	assert.Equal(t, "value", l.All()["PH_SET"])
}

func TestTypedHelpers(t *testing.T) {
	l := NewLoader()
	l.vars["PH_INT"] = "42"
	l.vars["PH_FLOAT"] = "0.25"
	l.vars["PH_BOOL"] = "true"
	l.vars["PH_DUR"] = "750ms"
	l.vars["PH_STR"] = "text"
	l.vars["PH_BAD"] = "nope"

	n := 1
	require.NoError(t, Int(l, "PH_INT", &n))
	assert.Equal(t, 42, n)

	f := 1.0
	require.NoError(t, Float(l, "PH_FLOAT", &f))
	assert.InDelta(t, 0.25, f, 1e-9)

	b := false
	require.NoError(t, Bool(l, "PH_BOOL", &b))
	assert.True(t, b)

	d := time.Second
	require.NoError(t, Duration(l, "PH_DUR", &d))
	assert.Equal(t, 750*time.Millisecond, d)

	s := "old"
	String(l, "PH_STR", &s)
	assert.Equal(t, "text", s)

	untouched := 7
	require.NoError(t, Int(l, "PH_UNSET", &untouched))
	assert.Equal(t, 7, untouched)

	assert.Error(t, Int(l, "PH_BAD", &n))
	assert.Error(t, Float(l, "PH_BAD", &f))
	assert.Error(t, Bool(l, "PH_BAD", &b))
	assert.Error(t, Duration(l, "PH_BAD", &d))
}
