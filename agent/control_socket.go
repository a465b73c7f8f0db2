package agent

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	"github.com/named-data/ndnd/std/types/optional"
	"github.com/named-data/ndnd/std/utils"
)

const (
	defaultMaxControlClients = 5
	pierStatusTimeout        = 30 * time.Second
)

// PierJSON is one entry of the `piers` command's JSON array.
type PierJSON struct {
	ID     uint64 `json:"id"`
	FaceID uint64 `json:"faceId"`
	Prefix string `json:"prefix"`
	IP     string `json:"ip"`
	Port   uint16 `json:"port"`
}

// ControlSocket is a local stream-socket server accepting newline-delimited
// commands and replying with NUL-terminated byte sequences, per the agent's
// introspection protocol.
type ControlSocket struct {
	path       string
	pt         *PeerTable
	status     *Status
	engine     ndn.Engine
	identity   *Identity
	maxClients int32

	listener net.Listener
	clients  int32

	now func() uint64
}

// NewControlSocket builds a ControlSocket listening on path. maxClients
// bounds concurrent connections; a non-positive value falls back to
// defaultMaxControlClients.
func NewControlSocket(path string, pt *PeerTable, status *Status, engine ndn.Engine, identity *Identity, maxClients int) *ControlSocket {
	if maxClients <= 0 {
		maxClients = defaultMaxControlClients
	}
	return &ControlSocket{
		path:       path,
		pt:         pt,
		status:     status,
		engine:     engine,
		identity:   identity,
		maxClients: int32(maxClients),
		now:        func() uint64 { return uint64(time.Now().UnixMicro()) },
	}
}

func (c *ControlSocket) String() string { return "control-socket" }

// Start removes any stale socket file, listens on path, and begins
// accepting connections in the background.
func (c *ControlSocket) Start() error {
	_ = os.Remove(c.path)
	l, err := net.Listen("unix", c.path)
	if err != nil {
		return err
	}
	c.listener = l
	go c.acceptLoop()
	return nil
}

func (c *ControlSocket) Stop() error {
	if c.listener == nil {
		return nil
	}
	return c.listener.Close()
}

func (c *ControlSocket) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		if atomic.AddInt32(&c.clients, 1) > c.maxClients {
			atomic.AddInt32(&c.clients, -1)
			_, _ = conn.Write([]byte("CONNECT REJECTED\x00"))
			conn.Close()
			continue
		}
		go c.serve(conn)
	}
}

func (c *ControlSocket) serve(conn net.Conn) {
	defer func() {
		atomic.AddInt32(&c.clients, -1)
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, closeAfter := c.dispatch(line)
		if _, err := conn.Write(append(reply, 0)); err != nil {
			log.Warn(c, "Write to control client failed, closing slot", "err", err)
			return
		}
		if closeAfter {
			return
		}
	}
}

func (c *ControlSocket) dispatch(line string) (reply []byte, closeAfter bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return []byte("ERROR: Invalid command"), false
	}

	switch fields[0] {
	case "status":
		return c.statusReply(), false
	case "piers":
		return c.piersReply(), false
	case "pier-status":
		if len(fields) != 2 {
			return []byte("ERROR: Invalid command"), false
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return []byte("ERROR: Invalid command"), false
		}
		return c.pierStatusReply(id), false
	case "exit":
		return []byte("GOODBYE!"), true
	default:
		return []byte("ERROR: Invalid command"), false
	}
}

func (c *ControlSocket) statusReply() []byte {
	payload, err := c.status.Report()
	if err != nil {
		return []byte("ERROR getting status")
	}
	return payload
}

func (c *ControlSocket) piersReply() []byte {
	var piers []PierJSON
	c.pt.VisitLive(func(p *Peer) {
		piers = append(piers, PierJSON{
			ID:     p.ID,
			FaceID: p.FaceID,
			Prefix: p.Prefix.String(),
			IP:     p.IP.String(),
			Port:   p.Port,
		})
	})
	if piers == nil {
		piers = []PierJSON{}
	}
	sort.Slice(piers, func(i, j int) bool { return piers[i].ID < piers[j].ID })
	payload, err := json.Marshal(piers)
	if err != nil {
		return []byte("ERROR: Invalid command")
	}
	return payload
}

// pierStatusReply: id == 0 is equivalent to `status`; otherwise send an
// nd-status interest to the peer and relay its JSON, or report an error on
// timeout/NACK.
func (c *ControlSocket) pierStatusReply(id uint64) []byte {
	if id == 0 {
		return c.statusReply()
	}
	peer := c.pt.LookupByID(id)
	if peer == nil {
		return []byte("ERROR getting status")
	}

	name := Encode(peer.Prefix, VerbStatus, c.identity.IP, c.identity.Port, c.identity.OwnPrefix, c.now())
	cfg := &ndn.InterestConfig{
		MustBeFresh: true,
		CanBePrefix: false,
		Lifetime:    optional.Some(pierStatusTimeout),
		Nonce:       utils.ConvertNonce(c.engine.Timer().Nonce()),
	}
	interest, err := c.engine.Spec().MakeInterest(name, cfg, nil, nil)
	if err != nil {
		return []byte("ERROR getting status")
	}

	ch := make(chan ndn.ExpressCallbackArgs, 1)
	if err := c.engine.Express(interest, func(eargs ndn.ExpressCallbackArgs) { ch <- eargs }); err != nil {
		return []byte("ERROR getting status")
	}
	eargs := <-ch
	if eargs.Result != ndn.InterestResultData {
		return []byte("ERROR getting status")
	}
	return eargs.Data.Content().Join()
}
