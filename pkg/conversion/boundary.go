package conversion

// EncodeLengths packs the byte lengths of one inner segment into a uint32.
// Each length must fit in a byte; ok is false otherwise.
func EncodeLengths(keyLen, valueLen, contentKeyLen, contentValueLen int) (uint32, bool) {
	for _, n := range []int{keyLen, valueLen, contentKeyLen, contentValueLen} {
		if n < 0 || n > 0xFF {
			return 0, false
		}
	}
	return uint32(keyLen) | uint32(valueLen)<<8 | uint32(contentKeyLen)<<16 | uint32(contentValueLen)<<24, true
}

// DecodeLengths is the inverse of EncodeLengths.
func DecodeLengths(encoded uint32) (keyLen, valueLen, contentKeyLen, contentValueLen int) {
	return int(encoded & 0xFF), int(encoded >> 8 & 0xFF), int(encoded >> 16 & 0xFF), int(encoded >> 24 & 0xFF)
}

// InnerSegment is one decoded piece of a multi-segment result.
type InnerSegment struct {
	Key          string
	Value        string
	ContentKey   string
	ContentValue string
}

// InnerSegments splits key and value along boundary. It returns nil when the
// boundary does not describe key and value exactly.
func InnerSegments(key, value string, boundary []uint32) []InnerSegment {
	if len(boundary) == 0 {
		return nil
	}
	segments := make([]InnerSegment, 0, len(boundary))
	keyPos, valuePos := 0, 0
	for _, encoded := range boundary {
		kl, vl, ckl, cvl := DecodeLengths(encoded)
		if keyPos+kl > len(key) || valuePos+vl > len(value) || ckl > kl || cvl > vl {
			return nil
		}
		segKey := key[keyPos : keyPos+kl]
		segValue := value[valuePos : valuePos+vl]
		segments = append(segments, InnerSegment{
			Key:          segKey,
			Value:        segValue,
			ContentKey:   segKey[:ckl],
			ContentValue: segValue[:cvl],
		})
		keyPos += kl
		valuePos += vl
	}
	if keyPos != len(key) || valuePos != len(value) {
		return nil
	}
	return segments
}
