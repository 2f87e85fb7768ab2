package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAddresses(t *testing.T) {
	got := mergeAddresses([]string{"192.0.2.1", "fd00::1"}, []string{"fd00::1", "192.0.2.7"})
	assert.Equal(t, []string{"192.0.2.1", "fd00::1", "192.0.2.7"}, got)
}

func TestRemoveAddresses(t *testing.T) {
	entry := &zeroconf.ServiceEntry{}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.0.2.1").To4()}

	got := removeAddresses([]string{"192.0.2.1", "fd00::1"}, entry)
	assert.Equal(t, []string{"fd00::1"}, got)
}

func TestEntryToBorderAgent(t *testing.T) {
	txt := EncodeBorderAgentTXT(&BorderAgentInfo{Version: "1.3.0", NetworkName: "home", Commissioned: true})

	entry := &zeroconf.ServiceEntry{}
	entry.Instance = "home 0400"
	entry.HostName = "br.local."
	entry.Port = 61631
	entry.Text = TXTRecordsToStrings(txt)
	entry.AddrIPv6 = []net.IP{net.ParseIP("fd00::1")}

	svc := entryToBorderAgent(entry)
	require.NotNil(t, svc)
	assert.Equal(t, "home 0400", svc.InstanceName)
	assert.Equal(t, uint16(61631), svc.Port)
	assert.Equal(t, []string{"fd00::1"}, svc.Addresses)
	assert.Equal(t, "home", svc.Info.NetworkName)

	entry.Text = nil
	assert.Nil(t, entryToBorderAgent(entry))
}
