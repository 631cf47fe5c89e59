package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/iKadmium/go-rtpmidi"
	"github.com/iKadmium/go-rtpmidi/midi"
)

var (
	sendChannel  uint8
	sendKey      uint8
	sendVelocity uint8
	sendHold     time.Duration

	sendCmd = &cobra.Command{
		Use:   "send <peer-addr>",
		Short: "Invite a peer and send one note",
		Long:  "Start a session, invite the peer's control port, send a NoteOn, hold, then send the matching NoteOff.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSend,
	}
)

func init() {
	sendCmd.Flags().Uint8Var(&sendChannel, "channel", 0, "MIDI channel (0-15)")
	sendCmd.Flags().Uint8Var(&sendKey, "key", 60, "note number")
	sendCmd.Flags().Uint8Var(&sendVelocity, "velocity", 100, "note velocity")
	sendCmd.Flags().DurationVar(&sendHold, "hold", 500*time.Millisecond, "time between note on and note off")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	addr, err := net.ResolveUDPAddr("udp", args[0])
	if err != nil {
		return fmt.Errorf("bad peer address %q: %w", args[0], err)
	}

	opts, _, err := loadConfig()
	if err != nil {
		return err
	}

	session, err := rtpmidi.Start(opts)
	if err != nil {
		return err
	}
	defer session.Stop()

	if err := session.InviteParticipant(addr); err != nil {
		return err
	}

	if err := session.SendMIDI(midi.NoteOn{Channel: sendChannel, Key: sendKey, Velocity: sendVelocity}); err != nil {
		return err
	}
	time.Sleep(sendHold)
	return session.SendMIDI(midi.NoteOff{Channel: sendChannel, Key: sendKey, Velocity: 0})
}
