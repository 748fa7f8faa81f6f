package logging

// StripANSI removes terminal escape sequences from data: CSI sequences
// (ESC [ ... final byte) and OSC sequences (ESC ] ... BEL or ESC \).
func StripANSI(data []byte) []byte {
	result := make([]byte, 0, len(data))
	i := 0
	for i < len(data) {
		if data[i] != 0x1b || i+1 >= len(data) {
			result = append(result, data[i])
			i++
			continue
		}
		switch data[i+1] {
		case '[':
			i += 2
			for i < len(data) {
				b := data[i]
				i++
				if b >= 0x40 && b <= 0x7e {
					break
				}
			}
		case ']':
			i += 2
			for i < len(data) {
				if data[i] == 0x07 {
					i++
					break
				}
				if data[i] == 0x1b && i+1 < len(data) && data[i+1] == '\\' {
					i += 2
					break
				}
				i++
			}
		default:
			result = append(result, data[i])
			i++
		}
	}
	return result
}
