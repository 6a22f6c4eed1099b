package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := New(Compile, "interfaces", "ifc/math.cppm", errors.New("exit status 1"))
	assert.Equal(t, "interfaces: compilation failed (ifc/math.cppm): exit status 1", err.Error())

	err = Newf(Config, "", "", "no %s found", "vcvars64.bat")
	assert.Equal(t, "configuration error: no vcvars64.bat found", err.Error())
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := New(Link, "link", "calculator", errors.New("boom"))
	wrapped := fmt.Errorf("qmod.toml: %w", inner)

	assert.Equal(t, Link, KindOf(wrapped))
	assert.True(t, Is(wrapped, Link))
	assert.False(t, Is(wrapped, Compile))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Unknown))
}

func TestExitCodesAreDistinct(t *testing.T) {
	seen := map[int]Kind{}
	for _, k := range []Kind{Config, CacheIO, Generation, Spawn, Compile, Link, Runtime} {
		code := k.ExitCode()
		assert.NotEqual(t, 0, code)
		_, dup := seen[code]
		assert.False(t, dup, "exit code %d reused by %s", code, k)
		seen[code] = k
	}
	assert.Equal(t, 1, Unknown.ExitCode())
}
