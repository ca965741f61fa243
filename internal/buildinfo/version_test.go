/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractModuleVersion(t *testing.T) {
	tests := []struct {
		name        string
		buildInfo   *debug.BuildInfo
		expectedVer string
	}{
		{
			name:        "main module",
			buildInfo:   &debug.BuildInfo{Main: debug.Module{Path: moduleName, Version: "v1.4.0"}},
			expectedVer: "v1.4.0",
		},
		{
			name:        "main module built from a working tree",
			buildInfo:   &debug.BuildInfo{Main: debug.Module{Path: moduleName, Version: "(devel)"}},
			expectedVer: "",
		},
		{
			name: "dependency, v2",
			buildInfo: &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/app"},
				Deps: []*debug.Module{{Path: moduleName + "/v2", Version: "v2.0.1"}},
			},
			expectedVer: "v2.0.1",
		},
		{
			name: "module not found",
			buildInfo: &debug.BuildInfo{
				Main: debug.Module{Path: "example.com/app"},
				Deps: []*debug.Module{{Path: moduleName + "-fork", Version: "v1.0.0"}},
			},
			expectedVer: "",
		},
		{
			name:        "nil build info",
			expectedVer: "",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedVer, extractModuleVersion(tt.buildInfo, moduleName))
		})
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent("hookrelay")
	require.True(t, strings.HasPrefix(ua, "hookrelay/v"), ua)
	require.Equal(t, Version(), strings.TrimPrefix(ua, "hookrelay/"))
}
