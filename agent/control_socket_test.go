package agent

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestControlSocket(t *testing.T) (*ControlSocket, *PeerTable, string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ah.sock")

	pt := NewPeerTable()
	status := NewStatus(&mockFCC{})
	cs := NewControlSocket(sockPath, pt, status, nil, nil, 0)
	require.NoError(t, cs.Start())
	t.Cleanup(func() { cs.Stop() })

	return cs, pt, sockPath
}

func sendLine(t *testing.T, sockPath, line string) string {
	t.Helper()
	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	fmt.Fprintf(conn, "%s\n", line)
	reader := bufio.NewReader(conn)
	reply, err := reader.ReadString(0)
	require.NoError(t, err)
	return reply[:len(reply)-1]
}

func TestControlSocketUnknownCommand(t *testing.T) {
	_, _, sockPath := newTestControlSocket(t)
	reply := sendLine(t, sockPath, "bogus")
	require.Equal(t, "ERROR: Invalid command", reply)
}

func TestControlSocketExit(t *testing.T) {
	_, _, sockPath := newTestControlSocket(t)
	reply := sendLine(t, sockPath, "exit")
	require.Equal(t, "GOODBYE!", reply)
}

func TestControlSocketPiersEmpty(t *testing.T) {
	_, _, sockPath := newTestControlSocket(t)
	reply := sendLine(t, sockPath, "piers")
	require.JSONEq(t, "[]", reply)
}

func TestControlSocketPiersListsLivePeers(t *testing.T) {
	_, pt, sockPath := newTestControlSocket(t)
	p, _ := pt.InsertOrGet(mustName(t, "/a"))
	pt.MarkFace(p.ID, 7)

	reply := sendLine(t, sockPath, "piers")
	require.Contains(t, reply, `"faceId":7`)
	require.Contains(t, reply, `"prefix":"/a"`)
}

func TestControlSocketHonorsConfiguredMaxClients(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "ah.sock")
	pt := NewPeerTable()
	status := NewStatus(&mockFCC{})
	cs := NewControlSocket(sockPath, pt, status, nil, nil, 1)
	require.NoError(t, cs.Start())
	t.Cleanup(func() { cs.Stop() })

	first, err := net.DialTimeout("unix", sockPath, time.Second)
	require.NoError(t, err)
	defer first.Close()

	time.Sleep(50 * time.Millisecond)

	reply := sendLine(t, sockPath, "bogus")
	require.Equal(t, "CONNECT REJECTED", reply)
}

func TestControlSocketRejectsOverflowClients(t *testing.T) {
	_, _, sockPath := newTestControlSocket(t)

	var conns []net.Conn
	for i := 0; i < defaultMaxControlClients; i++ {
		conn, err := net.DialTimeout("unix", sockPath, time.Second)
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	// give the server a moment to register each accepted connection
	time.Sleep(50 * time.Millisecond)

	reply := sendLine(t, sockPath, "bogus")
	require.Equal(t, "CONNECT REJECTED", reply)
}
