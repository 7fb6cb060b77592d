// Package runnerclient implements the runner's half of the trainer
// protocol: the request/response transport and the fetch-simulate-report
// loop (SPEC_FULL.md §4.L). Grounded on
// original_source/runner/internal/client.h/.cpp for the request shape
// (write, half-close the write side, read the response, close) and on
// runner_app_init.cpp/runner_app_simulation.cpp for the do_init/
// do_simulation state machine; sockpp's tcp_connector is replaced with
// net.Dial plus (*net.TCPConn).CloseWrite.
package runnerclient

import (
	"net"
	"time"

	"github.com/lox/marslander/internal/wire"
)

// retryDelay mirrors the reference's client::detail_::delay: how long
// the runner waits between failed attempts to reach the trainer.
const retryDelay = 5 * time.Second

// request dials addr, writes msgs as one packet, half-closes the
// connection's write side (so the trainer's blocking read sees EOF
// after the last byte), and returns the decoded response packet.
func request(addr string, msgs ...any) (*wire.Bag, error) {
	conn, err := net.DialTimeout("tcp", addr, retryDelay)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := wire.WritePacket(conn, msgs...); err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return nil, err
		}
	}

	bag, err := wire.ReadPacket(conn)
	if err != nil {
		return nil, err
	}
	if bag.Len() == 0 {
		return nil, &wire.ProtocolError{Msg: "empty response"}
	}
	return bag, nil
}
