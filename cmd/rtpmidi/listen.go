package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iKadmium/go-rtpmidi"
	"github.com/iKadmium/go-rtpmidi/rtp"
)

var (
	listenName      string
	listenPort      uint16
	listenAdvertise bool

	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Accept invitations and log received MIDI",
		Long:  "Start a session, accept every invitation, invite configured peers, and log received MIDI packets until interrupted.",
		RunE:  runListen,
	}
)

func init() {
	listenCmd.Flags().StringVarP(&listenName, "name", "n", "", "session name")
	listenCmd.Flags().Uint16VarP(&listenPort, "port", "p", 0, "control port (data port is one above)")
	listenCmd.Flags().BoolVarP(&listenAdvertise, "advertise", "a", false, "advertise the session over mDNS")
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	opts, peers, err := loadConfig()
	if err != nil {
		return err
	}
	if listenName != "" {
		opts.Name = listenName
	}
	if listenPort != 0 {
		opts.Port = listenPort
	}
	if listenAdvertise {
		opts.Advertise = true
	}

	session, err := rtpmidi.Start(opts)
	if err != nil {
		return err
	}
	defer session.Stop()

	session.OnParticipantJoined(func(ssrc uint32, name string) {
		logrus.Infof("participant joined: %s (%08x)", name, ssrc)
	})
	session.OnParticipantLeft(func(ssrc uint32, name string) {
		logrus.Infof("participant left: %s (%08x)", name, ssrc)
	})
	session.OnMidiPacket(func(p *rtp.Packet) {
		for _, c := range p.Commands {
			logrus.Infof("midi from %08x: %#v", p.SSRC, c)
		}
	})

	for _, peer := range peers {
		addr, err := net.ResolveUDPAddr("udp", peer)
		if err != nil {
			return fmt.Errorf("bad peer address %q: %w", peer, err)
		}
		if err := session.InviteParticipant(addr); err != nil {
			logrus.Warnf("invitation failed: %v", err)
		}
	}

	logrus.Infof("listening on control port %d", session.ControlPort())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	return nil
}
