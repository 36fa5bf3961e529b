package wire

import "encoding/binary"

// ARP hardware/protocol type and opcode constants, restricted to the
// Ethernet/IPv4 combination the stack actually speaks.
const (
	ARPHardwareEthernet = 1
	ARPProtoIPv4        = 0x0800

	ARPOpRequest = 1
	ARPOpReply   = 2
)

const ARPMessageLen = 28

// ARPMessage is a parsed Ethernet/IPv4 ARP packet.
type ARPMessage struct {
	Opcode    uint16
	SenderMAC MACAddr
	SenderIP  [4]byte
	TargetMAC MACAddr
	TargetIP  [4]byte
}

// ParseARP decodes an ARP message, rejecting anything that isn't
// Ethernet/IPv4 addressing.
func ParseARP(data []byte) (ARPMessage, bool) {
	if len(data) < ARPMessageLen {
		return ARPMessage{}, false
	}
	hwType := binary.BigEndian.Uint16(data[0:2])
	protoType := binary.BigEndian.Uint16(data[2:4])
	hwSize := data[4]
	protoSize := data[5]
	if hwType != ARPHardwareEthernet || protoType != ARPProtoIPv4 || hwSize != 6 || protoSize != 4 {
		return ARPMessage{}, false
	}
	var m ARPMessage
	m.Opcode = binary.BigEndian.Uint16(data[6:8])
	copy(m.SenderMAC[:], data[8:14])
	copy(m.SenderIP[:], data[14:18])
	copy(m.TargetMAC[:], data[18:24])
	copy(m.TargetIP[:], data[24:28])
	return m, true
}

// Serialize encodes the ARP message into its 28-byte wire form.
func (m ARPMessage) Serialize() []byte {
	buf := make([]byte, ARPMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], ARPHardwareEthernet)
	binary.BigEndian.PutUint16(buf[2:4], ARPProtoIPv4)
	buf[4] = 6
	buf[5] = 4
	binary.BigEndian.PutUint16(buf[6:8], m.Opcode)
	copy(buf[8:14], m.SenderMAC[:])
	copy(buf[14:18], m.SenderIP[:])
	copy(buf[18:24], m.TargetMAC[:])
	copy(buf[24:28], m.TargetIP[:])
	return buf
}
