// Package qrcode builds EMV-QR Merchant-Presented-Mode payloads for
// PromptPay: Tag 29 (Credit Transfer), Tag 30 (Bill Payment), and the Bank
// of Thailand long/short standard forms. It never renders a PNG; producing
// an image from the returned payload string is an external concern.
package qrcode

// CRC16CCITTFalse computes CRC-16/CCITT-FALSE: polynomial 0x1021, initial
// value 0xFFFF, no input/output reflection, no final XOR. This is the
// checksum the EMV QR Code specification (and the Bank of Thailand QR
// standard) requires for Tag 63.
func CRC16CCITTFalse(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc = crc << 1
			}
		}
	}
	return crc
}
