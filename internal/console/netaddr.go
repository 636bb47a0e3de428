package console

import (
	"net"
	"strconv"
)

// LocalIP returns the address other devices on the LAN can reach this host
// on. Dialing UDP sends no packets; it only picks the outbound interface.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// ScanURL builds the URL shown to the operator from a bound listen address
// such as "[::]:8080" or "0.0.0.0:8080".
func ScanURL(host, boundAddr string) string {
	_, port, err := net.SplitHostPort(boundAddr)
	if err != nil {
		return "http://" + net.JoinHostPort(host, "8080")
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "http://" + net.JoinHostPort(host, "8080")
	}
	return "http://" + net.JoinHostPort(host, port)
}
