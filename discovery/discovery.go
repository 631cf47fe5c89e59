// Package discovery advertises an RTP-MIDI session over mDNS so that
// DAWs and other AppleMIDI hosts can find it by name.
//
// Advertisement is best-effort: the session core never depends on it.
package discovery

import (
	"fmt"
	"net"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the DNS-SD service type registered for AppleMIDI
// sessions. The advertised port is the session's control port.
const ServiceType = "_apple-midi._udp."

// Advertiser is a running mDNS registration for one session.
type Advertiser struct {
	server *mdns.Server
}

// Advertise registers the session name and control port with mDNS.
func Advertise(name string, port uint16) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(name, ServiceType, "", "", int(port), ips, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"name":    name,
		"port":    port,
		"service": ServiceType,
	}).Info("Advertising session over mDNS")

	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the registration.
func (a *Advertiser) Shutdown() {
	if a.server != nil {
		a.server.Shutdown()
	}
}

func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
