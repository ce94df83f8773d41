// Package credential encodes appointments into scannable, tamper-evident
// tokens and decodes them back.
package credential

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"vaxslot/pkg/model"
	"vaxslot/pkg/sealer"

	"github.com/fxamacker/cbor/v2"
	"github.com/skip2/go-qrcode"
	"github.com/zeebo/blake3"
)

const (
	KeySize = 32

	verifyPath = "/api/v1/verify/"
)

var (
	ErrMalformedToken = errors.New("malformed credential token")
	ErrInvalidKey     = errors.New("credential key must be 32 bytes")
)

// Token is the wire form of a credential. Field order is irrelevant; the
// JSON object is what the QR code carries.
type Token struct {
	AppointmentID   string                  `json:"appointmentId"`
	UserID          string                  `json:"userId,omitempty"`
	PatientEmail    string                  `json:"patientEmail"`
	VaccineID       string                  `json:"vaccineId"`
	Vaccine         string                  `json:"vaccine"`
	Date            string                  `json:"date"`
	Time            string                  `json:"time"`
	Status          model.AppointmentStatus `json:"status"`
	Hash            string                  `json:"hash"`
	VerificationURL string                  `json:"verificationUrl"`
}

// snapshot holds the appointment fields that never change after booking.
// Status is not included.
type snapshot struct {
	ID        string `cbor:"1,keyasint"`
	UserID    string `cbor:"2,keyasint"`
	UserEmail string `cbor:"3,keyasint"`
	SlotID    string `cbor:"4,keyasint"`
	VaccineID string `cbor:"5,keyasint"`
	BookedAt  int64  `cbor:"6,keyasint"`
}

type Codec struct {
	key     []byte
	sealer  *sealer.Sealer
	baseURL string
	enc     cbor.EncMode
}

func NewCodec(key []byte, s *sealer.Sealer, baseURL string) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid verification base url: %w", err)
	}

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build cbor encoder: %w", err)
	}

	return &Codec{
		key:     append([]byte(nil), key...),
		sealer:  s,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		enc:     enc,
	}, nil
}

// Encode returns the raw token text and its parsed form.
func (c *Codec) Encode(a *model.Appointment, slot *model.Slot, vaccine *model.Vaccine) (string, *Token, error) {
	if a == nil || a.ID == "" {
		return "", nil, errors.New("appointment id is required to issue a credential")
	}

	digest, err := c.Digest(a)
	if err != nil {
		return "", nil, err
	}

	ref, err := c.sealer.CreateOpaqueToken(a.ID, a.UserID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to seal verification reference: %w", err)
	}

	tok := &Token{
		AppointmentID:   a.ID,
		UserID:          a.UserID,
		PatientEmail:    a.UserEmail,
		VaccineID:       a.VaccineID,
		Status:          a.Status,
		Hash:            digest,
		VerificationURL: c.baseURL + verifyPath + ref,
	}
	if slot != nil {
		tok.Date = slot.Date
		tok.Time = slot.TimeRange()
	}
	if vaccine != nil {
		tok.Vaccine = vaccine.Name
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	return string(raw), tok, nil
}

func (c *Codec) Decode(raw string) (*Token, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedToken)
	}

	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if strings.TrimSpace(tok.AppointmentID) == "" {
		return nil, fmt.Errorf("%w: appointmentId is missing", ErrMalformedToken)
	}
	return &tok, nil
}

// Digest is a keyed BLAKE3 MAC over the deterministic CBOR encoding of the
// appointment's issuance fields.
func (c *Codec) Digest(a *model.Appointment) (string, error) {
	data, err := c.enc.Marshal(snapshot{
		ID:        a.ID,
		UserID:    a.UserID,
		UserEmail: a.UserEmail,
		SlotID:    a.SlotID,
		VaccineID: a.VaccineID,
		BookedAt:  a.BookedAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode appointment snapshot: %w", err)
	}

	h, err := blake3.NewKeyed(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to init digest: %w", err)
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether tok was issued for the live appointment a.
func (c *Codec) Verify(tok *Token, a *model.Appointment) (bool, error) {
	if tok.AppointmentID != a.ID {
		return false, nil
	}
	want, err := c.Digest(a)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(tok.Hash))) == 1, nil
}

// ResolveReference opens the sealed reference at the end of a verification URL.
func (c *Codec) ResolveReference(ref string) (appointmentID string, userID string, err error) {
	appointmentID, userID, err = c.sealer.ParseOpaqueToken(ref)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return appointmentID, userID, nil
}

func (c *Codec) QRCode(raw string, size int) ([]byte, error) {
	png, err := qrcode.Encode(raw, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render credential QR code: %w", err)
	}
	return png, nil
}
