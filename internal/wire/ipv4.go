package wire

import "encoding/binary"

// IPProtocol identifies the payload protocol carried in an IPv4 datagram.
type IPProtocol uint8

const (
	ProtocolTCP IPProtocol = 6
)

const IPv4HeaderLen = 20

// IPv4Datagram is a parsed IPv4 packet. Options beyond the fixed header are
// dropped; the router and network stack have no use for them.
type IPv4Datagram struct {
	TTL      uint8
	Protocol IPProtocol
	Checksum uint16
	Src      [4]byte
	Dst      [4]byte
	Payload  []byte
}

// ParseIPv4 decodes a minimal IPv4 header. Payload aliases data.
func ParseIPv4(data []byte) (IPv4Datagram, bool) {
	if len(data) < IPv4HeaderLen {
		return IPv4Datagram{}, false
	}
	verIHL := data[0]
	if verIHL>>4 != 4 {
		return IPv4Datagram{}, false
	}
	headerLen := int(verIHL&0x0f) * 4
	if headerLen < IPv4HeaderLen || len(data) < headerLen {
		return IPv4Datagram{}, false
	}
	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen > len(data) {
		totalLen = len(data)
	}
	if totalLen < headerLen {
		return IPv4Datagram{}, false
	}

	var d IPv4Datagram
	d.TTL = data[8]
	d.Protocol = IPProtocol(data[9])
	d.Checksum = binary.BigEndian.Uint16(data[10:12])
	copy(d.Src[:], data[12:16])
	copy(d.Dst[:], data[16:20])
	d.Payload = data[headerLen:totalLen]
	return d, true
}

// Serialize encodes the datagram with a freshly computed header checksum.
// TTL of zero is not special-cased here; callers that decrement TTL to zero
// are expected to drop the datagram instead of sending it.
func (d IPv4Datagram) Serialize() []byte {
	totalLen := IPv4HeaderLen + len(d.Payload)
	buf := make([]byte, totalLen)
	buf[0] = (4 << 4) | (IPv4HeaderLen / 4)
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(buf[4:6], 0)
	binary.BigEndian.PutUint16(buf[6:8], 0)
	buf[8] = d.TTL
	buf[9] = byte(d.Protocol)
	copy(buf[12:16], d.Src[:])
	copy(buf[16:20], d.Dst[:])
	binary.BigEndian.PutUint16(buf[10:12], IPv4Checksum(buf[:IPv4HeaderLen]))
	copy(buf[IPv4HeaderLen:], d.Payload)
	return buf
}

// IPv4Checksum computes the one's-complement checksum used by the IPv4
// header. The checksum field within data should be zeroed by the caller.
func IPv4Checksum(data []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
