package aicp

import "errors"

// errUnsupportedAddr is returned when a USEND peer address or a CONN target
// isn't an address value this module knows how to convert to a raw
// sockaddr, and when a SENDF has no DstAICO.
var errUnsupportedAddr = errors.New("aicp: unsupported peer address type")
