package qr

import (
	"bytes"
	"testing"

	"ms-registration/internal/models"
	"ms-registration/internal/scrambler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt(t *testing.T) {
	q := NewQRGenerator("s3cret")
	enc, err := q.Encrypt(Payload{TicketID: "ABC", Rate: "individual", Days: []string{"sat"}})
	require.NoError(t, err)

	got, err := q.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "ABC", got.TicketID)
	assert.Equal(t, []string{"sat"}, got.Days)

	_, err = NewQRGenerator("other").Decrypt(enc)
	assert.Error(t, err)
	_, err = q.Decrypt("%%%")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGenerateEncryptedQR(t *testing.T) {
	q := NewQRGenerator("s3cret")
	ticket := &models.Ticket{ID: 5, Rate: "individual", Sat: true, Sun: true}

	png, err := q.GenerateEncryptedQR(ticket)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	assert.NotEmpty(t, scrambler.Tickets.Forward(ticket.ID))
}
