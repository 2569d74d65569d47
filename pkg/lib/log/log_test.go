package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(&buf, "debug", FormatJSON))
	t.Cleanup(Discard)

	Logger("discovery/dht").Debug("查询完成", "peers", 3)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"component":"discovery/dht"`), out)
	assert.True(t, strings.Contains(out, `"peers":3`), out)
}

func TestSetup_UnknownFormat(t *testing.T) {
	assert.Error(t, Setup(nil, "info", "xml"))
}

