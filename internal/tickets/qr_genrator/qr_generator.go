package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"

	"ms-registration/internal/models"
	"ms-registration/internal/scrambler"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidPayload = errors.New("invalid QR payload")

// Payload is what a ticket QR code carries, encrypted so that door staff
// scanners are the only readers.
type Payload struct {
	TicketID string   `json:"ticket_id"`
	Rate     string   `json:"rate"`
	Days     []string `json:"days"`
}

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// GenerateEncryptedQR renders a PNG QR code for ticket.
func (q *QRGenerator) GenerateEncryptedQR(ticket *models.Ticket) ([]byte, error) {
	encrypted, err := q.Encrypt(Payload{
		TicketID: scrambler.Tickets.Forward(ticket.ID),
		Rate:     ticket.Rate,
		Days:     ticket.DayKeys(),
	})
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func (q *QRGenerator) Encrypt(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return encryptAES(data, q.secret)
}

// Decrypt reverses Encrypt.
func (q *QRGenerator) Decrypt(encoded string) (Payload, error) {
	var p Payload
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < aes.BlockSize {
		return p, ErrInvalidPayload
	}
	block, err := aes.NewCipher(q.secret)
	if err != nil {
		return p, err
	}
	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plain, ciphertext)
	if err := json.Unmarshal(plain, &p); err != nil {
		return p, ErrInvalidPayload
	}
	return p, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
