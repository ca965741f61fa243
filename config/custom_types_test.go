/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestByteSize(t *testing.T) {
	var v struct {
		Size ByteSize `json:"size" yaml:"size"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"size":"2M"}`), &v))
	require.Equal(t, ByteSize(2*1024*1024), v.Size)
	require.NoError(t, json.Unmarshal([]byte(`{"size":512}`), &v))
	require.Equal(t, ByteSize(512), v.Size)
	require.Error(t, json.Unmarshal([]byte(`{"size":-1}`), &v))

	require.NoError(t, yaml.Unmarshal([]byte("size: 1Ki"), &v))
	require.Equal(t, ByteSize(1024), v.Size)
	require.Error(t, yaml.Unmarshal([]byte("size: huge"), &v))

	out, err := json.Marshal(ByteSize(1024))
	require.NoError(t, err)
	require.Equal(t, `"1K"`, string(out))
}

func TestTimeDuration(t *testing.T) {
	var v struct {
		Timeout TimeDuration `json:"timeout" yaml:"timeout"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"1m30s"}`), &v))
	require.Equal(t, TimeDuration(90*time.Second), v.Timeout)
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":1000}`), &v))
	require.Equal(t, TimeDuration(1000), v.Timeout)

	require.NoError(t, yaml.Unmarshal([]byte("timeout: 2s"), &v))
	require.Equal(t, TimeDuration(2*time.Second), v.Timeout)
	require.Error(t, yaml.Unmarshal([]byte("timeout: later"), &v))

	var d TimeDuration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	require.Equal(t, "250ms", d.String())
}
