// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ardlink

import "io"

// Transport is the duplex byte channel to the device.
//
// Read must return within the link's per-read timeout. When no bytes arrived
// in that time it returns 0 and a nil error, as a serial port with a read
// timeout does.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}
