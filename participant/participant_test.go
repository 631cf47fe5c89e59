package participant

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataAddrIsControlPlusOne(t *testing.T) {
	ctrl := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 5004}
	p := New(ctrl, 0x00ABCDEF, true, 0xDEADBEEF, "peer")

	require.Equal(t, ctrl, p.ControlAddr())
	assert.Equal(t, ctrl.IP, p.DataAddr().IP)
	assert.Equal(t, 5005, p.DataAddr().Port)
}

func TestNewDefaults(t *testing.T) {
	p := New(&net.UDPAddr{Port: 5004}, 7, false, 9, "peer")

	assert.Equal(t, StateInviteSentControl, p.State)
	assert.False(t, p.Joined)
	assert.False(t, p.InvitedByUs)
	assert.WithinDuration(t, time.Now(), p.LastSeen, time.Second)
	assert.Empty(t, p.Offsets())
}

func TestMarkSeen(t *testing.T) {
	p := New(&net.UDPAddr{Port: 5004}, 7, false, 9, "peer")
	then := time.Now().Add(time.Minute)
	p.MarkSeen(then)
	assert.Equal(t, then, p.LastSeen)
}

func TestOffsetRingEvictsOldest(t *testing.T) {
	p := New(&net.UDPAddr{Port: 5004}, 7, true, 9, "peer")

	p.RecordOffset(1)
	p.RecordOffset(2)
	assert.Equal(t, []int64{1, 2}, p.Offsets())

	for i := int64(3); i <= 12; i++ {
		p.RecordOffset(i)
	}
	assert.Equal(t, []int64{5, 6, 7, 8, 9, 10, 11, 12}, p.Offsets())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "invite-sent-control", StateInviteSentControl.String())
	assert.Equal(t, "invite-sent-data", StateInviteSentData.String())
	assert.Equal(t, "established", StateEstablished.String())
	assert.Equal(t, "closing", StateClosing.String())
}
