// SPDX-License-Identifier: MIT

package stream

import (
	"errors"
	"fmt"
	"net"
)

// candidatePorts is the static list probed for a free engine listen port.
var candidatePorts = []int{8000, 8001, 8002, 8003, 8080, 8888}

var errNoFreePort = errors.New("no free engine port in candidate list")

// choosePort returns the first candidate port that accepts an ephemeral
// listen, i.e. is currently unbound.
func choosePort() (int, error) {
	for _, port := range candidatePorts {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, errNoFreePort
}
