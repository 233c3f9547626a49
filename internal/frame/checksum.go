// internal/frame/checksum.go
package frame

// CRC16 computes the Modbus RTU CRC (init 0xFFFF, reflected polynomial 0xA001).
// The result goes on the wire low byte first.
func CRC16(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range b {
		crc ^= uint16(v)
		for range 8 {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// Sum8 is the Winsen checksum over a 9-byte frame: the two's complement of
// the sum of bytes 1..7. Start byte and checksum byte are excluded.
func Sum8(frame []byte) byte {
	var s byte
	for _, v := range frame[1:8] {
		s += v
	}
	return 0xFF - s + 1
}
