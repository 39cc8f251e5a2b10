package mac

import (
	"bytes"
	"crypto/aes"
	"encoding/binary"

	"github.com/brocaar/lorawan"
	"github.com/jacobsa/crypto/cmac"
	"github.com/pkg/errors"
)

// MHDR message types (MType << 5, major LoRaWAN R1).
const (
	mTypeJoinRequest         = 0x00
	mTypeJoinAccept          = 0x20
	mTypeUnconfirmedDataUp   = 0x40
	mTypeUnconfirmedDataDown = 0x60
	mTypeConfirmedDataUp     = 0x80
	mTypeConfirmedDataDown   = 0xa0

	mTypeMask = 0xe0
)

// session holds the keys and counters of an established session.
type session struct {
	devAddr  [4]byte // LSB first, as on the wire
	nwkSKey  [16]byte
	appSKey  [16]byte
	fCntUp   uint32
	fCntDown uint32
	rxDelay  uint8
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// buildJoinRequest returns the PHYPayload of a join-request.
func buildJoinRequest(appEUI, devEUI lorawan.EUI64, devNonce uint16, appKey lorawan.AES128Key) []byte {
	buf := make([]byte, 0, 23)
	buf = append(buf, mTypeJoinRequest)
	buf = append(buf, reverseBytes(appEUI[:])...)
	buf = append(buf, reverseBytes(devEUI[:])...)

	var nonce [2]byte
	binary.LittleEndian.PutUint16(nonce[:], devNonce)
	buf = append(buf, nonce[:]...)

	mic := joinMIC(appKey, buf)
	return append(buf, mic[:]...)
}

// decodeJoinAccept decrypts and validates a join-accept PHYPayload and
// derives the session keys.
func decodeJoinAccept(phy []byte, appKey lorawan.AES128Key, devNonce uint16) (*session, error) {
	if len(phy) < 17 {
		return nil, errors.New("join-accept too short")
	}
	if phy[0]&mTypeMask != mTypeJoinAccept {
		return nil, errors.New("not a join-accept")
	}

	data := phy[1:]
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("invalid join-accept size")
	}

	// the join-accept is encrypted with aes128_decrypt on the server, so
	// the device recovers it with aes128_encrypt
	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return nil, errors.Wrap(err, "new cipher error")
	}
	buf := make([]byte, len(data))
	for k := 0; k < len(data)/aes.BlockSize; k++ {
		block.Encrypt(buf[k*aes.BlockSize:], data[k*aes.BlockSize:])
	}

	var appNonce [3]byte
	var netID [3]byte
	var s session
	copy(appNonce[:], buf[0:3])
	copy(netID[:], buf[3:6])
	copy(s.devAddr[:], buf[6:10])
	s.rxDelay = buf[11]

	micData := make([]byte, 0, len(buf)-3)
	micData = append(micData, phy[0])
	micData = append(micData, buf[:len(buf)-4]...)
	mic := joinMIC(appKey, micData)
	if !bytes.Equal(mic[:], buf[len(buf)-4:]) {
		return nil, errors.New("invalid join-accept mic")
	}

	// NwkSKey = aes128_encrypt(AppKey, 0x01 | AppNonce | NetID | DevNonce | pad16)
	// AppSKey = aes128_encrypt(AppKey, 0x02 | AppNonce | NetID | DevNonce | pad16)
	kb := make([]byte, aes.BlockSize)
	kb[0] = 0x01
	copy(kb[1:4], appNonce[:])
	copy(kb[4:7], netID[:])
	binary.LittleEndian.PutUint16(kb[7:9], devNonce)

	var out [aes.BlockSize]byte
	block.Encrypt(out[:], kb)
	copy(s.nwkSKey[:], out[:])

	kb[0] = 0x02
	block.Encrypt(out[:], kb)
	copy(s.appSKey[:], out[:])

	return &s, nil
}

// buildDataUp returns the PHYPayload of an (un)confirmed data uplink using
// the session's current FCntUp.
func buildDataUp(s *session, confirmed bool, fPort uint8, payload []byte) ([]byte, error) {
	mhdr := byte(mTypeUnconfirmedDataUp)
	if confirmed {
		mhdr = mTypeConfirmedDataUp
	}

	buf := make([]byte, 0, 13+len(payload))
	buf = append(buf, mhdr)
	buf = append(buf, s.devAddr[:]...)
	buf = append(buf, 0x00) // FCtrl: no ADR, no ACK, no FOpts

	var fCnt [2]byte
	binary.LittleEndian.PutUint16(fCnt[:], uint16(s.fCntUp))
	buf = append(buf, fCnt[:]...)
	buf = append(buf, fPort)

	frm, err := cryptFRMPayload(s.appSKey, 0, s.devAddr, s.fCntUp, payload)
	if err != nil {
		return nil, errors.Wrap(err, "encrypt frm payload error")
	}
	buf = append(buf, frm...)

	mic := dataMIC(s.nwkSKey, 0, s.devAddr, s.fCntUp, buf)
	return append(buf, mic[:]...), nil
}

// decodeDataDown validates a data downlink against the session and returns
// its frame counter, ACK flag and decrypted application payload.
func decodeDataDown(s *session, phy []byte) (fCntDown uint32, ack bool, data []byte, err error) {
	if len(phy) < 12 {
		return 0, false, nil, errors.New("downlink too short")
	}

	switch phy[0] & mTypeMask {
	case mTypeUnconfirmedDataDown, mTypeConfirmedDataDown:
	default:
		return 0, false, nil, errors.New("not a data downlink")
	}

	if !bytes.Equal(phy[1:5], s.devAddr[:]) {
		return 0, false, nil, errors.New("dev addr mismatch")
	}

	fCtrl := phy[5]
	ack = fCtrl&0x20 != 0
	fOptsLen := int(fCtrl & 0x0f)
	fCntDown = uint32(binary.LittleEndian.Uint16(phy[6:8]))

	micIdx := len(phy) - 4
	if 8+fOptsLen > micIdx {
		return 0, false, nil, errors.New("invalid fopts length")
	}

	mic := dataMIC(s.nwkSKey, 1, s.devAddr, fCntDown, phy[:micIdx])
	if !bytes.Equal(mic[:], phy[micIdx:]) {
		return 0, false, nil, errors.New("invalid downlink mic")
	}

	// FPort + FRMPayload are optional
	if rest := phy[8+fOptsLen : micIdx]; len(rest) > 1 {
		fPort := rest[0]
		key := s.appSKey
		if fPort == 0 {
			key = s.nwkSKey
		}
		data, err = cryptFRMPayload(key, 1, s.devAddr, fCntDown, rest[1:])
		if err != nil {
			return 0, false, nil, errors.Wrap(err, "decrypt frm payload error")
		}
	}

	return fCntDown, ack, data, nil
}

// cryptFRMPayload implements the FRMPayload encryption of the LoRaWAN 1.0.x
// specification (§4.3.3). Encryption and decryption are the same operation.
func cryptFRMPayload(key [16]byte, dir uint8, devAddr [4]byte, fCnt uint32, payload []byte) ([]byte, error) {
	cipher, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "new cipher error")
	}

	k := len(payload) / aes.BlockSize
	if len(payload)%aes.BlockSize != 0 {
		k++
	}

	var a, b, sBlock [aes.BlockSize]byte
	a[0] = 0x01
	a[5] = dir
	copy(a[6:10], devAddr[:])
	binary.LittleEndian.PutUint32(a[10:14], fCnt)

	out := make([]byte, 0, k*aes.BlockSize)
	for i := 0; i < k; i++ {
		copy(b[:], payload[i*aes.BlockSize:])
		a[15] = byte(i + 1)
		cipher.Encrypt(sBlock[:], a[:])
		for j := 0; j < aes.BlockSize; j++ {
			b[j] ^= sBlock[j]
		}
		out = append(out, b[:]...)
	}
	return out[:len(payload)], nil
}

// joinMIC computes the MIC of a join-request / join-accept payload.
func joinMIC(key lorawan.AES128Key, payload []byte) [4]byte {
	var mic [4]byte
	hash, _ := cmac.New(key[:])
	hash.Write(payload)
	copy(mic[:], hash.Sum(nil)[0:4])
	return mic
}

// dataMIC computes the MIC of a data frame (§4.4).
func dataMIC(key [16]byte, dir uint8, devAddr [4]byte, fCnt uint32, msg []byte) [4]byte {
	b0 := make([]byte, 0, 16+len(msg))
	b0 = append(b0, 0x49, 0x00, 0x00, 0x00, 0x00)
	b0 = append(b0, dir)
	b0 = append(b0, devAddr[:]...)

	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], fCnt)
	b0 = append(b0, cnt[:]...)
	b0 = append(b0, 0x00, byte(len(msg)))
	b0 = append(b0, msg...)

	var mic [4]byte
	hash, _ := cmac.New(key[:])
	hash.Write(b0)
	copy(mic[:], hash.Sum(nil)[0:4])
	return mic
}
