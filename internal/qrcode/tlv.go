package qrcode

import "fmt"

// FormatTLV encodes a single EMV tag as Tag(2) + Length(2) + Value, where
// length is the number of UTF-8 bytes in value, not its rune count — a
// payload with multi-byte merchant-name characters would scan incorrectly
// if length were counted any other way.
func FormatTLV(tag, value string) string {
	length := len([]byte(value))
	return fmt.Sprintf("%s%02d%s", tag, length, value)
}

// FinalizeWithCRC appends the Tag 63 CRC field. The CRC is computed over
// payload + "6304" (tag + length of the about-to-be-appended 4-char CRC),
// and the resulting checksum is appended as 4 uppercase hex characters.
func FinalizeWithCRC(payloadWithoutCRCTag string) string {
	forCRC := payloadWithoutCRCTag + "6304"
	crc := CRC16CCITTFalse([]byte(forCRC))
	return fmt.Sprintf("%s%04X", forCRC, crc)
}
