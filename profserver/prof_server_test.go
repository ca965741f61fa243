/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/log/logtest"
)

func TestProfServer_StartStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	logger := logtest.NewRecorder()
	profServer := New(&Config{Enabled: true, Address: ln.Addr().String()}, logger, ln)
	fatalErr := make(chan error, 1)
	go profServer.Start(fatalErr)

	resp, err := http.Get("http://" + ln.Addr().String() + "/debug/pprof/")
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, respBody)

	require.NoError(t, profServer.Stop(true))
	require.Len(t, fatalErr, 0)
	_, found := logger.FindEntry("profiling HTTP server closed")
	require.True(t, found)
}

func TestProfServer_StartError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	profServer := New(&Config{Enabled: true, Address: ln.Addr().String()}, logtest.NewRecorder(), nil)
	fatalErr := make(chan error, 1)
	profServer.Start(fatalErr)
	require.Error(t, <-fatalErr)
}
