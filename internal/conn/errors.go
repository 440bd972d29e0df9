package conn

import "errors"

var ErrNotConnected = errors.New("socket is not connected")
