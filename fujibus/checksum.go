package fujibus

// Checksum returns the XOR of every byte in pkt, with the checksum byte at
// ChecksumOffset treated as zero.
func Checksum(pkt []byte) byte {
	var sum byte
	for i, b := range pkt {
		if i == ChecksumOffset {
			continue
		}
		sum ^= b
	}

	return sum
}

// VerifyChecksum reports whether the checksum byte of pkt matches its content.
func VerifyChecksum(pkt []byte) bool {
	if len(pkt) < HeaderSize {
		return false
	}

	return pkt[ChecksumOffset] == Checksum(pkt)
}

// seal stores the checksum of pkt in its header.
func seal(pkt []byte) {
	pkt[ChecksumOffset] = 0
	pkt[ChecksumOffset] = Checksum(pkt)
}
