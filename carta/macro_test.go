package carta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacro_String(t *testing.T) {
	m := NewMacro("frameMap[0]", "frameInfo")
	assert.Equal(t, "Macro('frameMap[0]', 'frameInfo')", m.String())
}

func TestMacro_JSON(t *testing.T) {
	data, err := json.Marshal([]any{"a", NewMacro("", "activeFrame"), 3})
	require.NoError(t, err)
	assert.JSONEq(t, `["a", {"macroTarget": "", "macroVariable": "activeFrame"}, 3]`, string(data))

	var m Macro
	require.NoError(t, json.Unmarshal([]byte(`{"macroTarget":"overlayStore","macroVariable":"global"}`), &m))
	assert.Equal(t, NewMacro("overlayStore", "global"), m)

	assert.Error(t, json.Unmarshal([]byte(`{"macroTarget":"overlayStore"}`), &m))
}

func TestEncodeParameters(t *testing.T) {
	params, err := encodeParameters(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", params)

	params, err = encodeParameters([]any{"/data", "cube.fits", ""})
	require.NoError(t, err)
	assert.Equal(t, `["/data","cube.fits",""]`, params)

	_, err = encodeParameters([]any{make(chan int)})
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		in, path, action string
	}{
		{"openFile", "", "openFile"},
		{"overlayStore.global.setSystem", "overlayStore.global", "setSystem"},
		{"frameMap[0].renderConfig.setColorMap", "frameMap[0].renderConfig", "setColorMap"},
	}
	for _, tc := range cases {
		p, a := SplitPath(tc.in)
		assert.Equal(t, tc.path, p, tc.in)
		assert.Equal(t, tc.action, a, tc.in)
	}
}
