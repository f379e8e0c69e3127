package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// sealedVar holds the sealed snapshot inside the envelope's variables.
const sealedVar = "__encrypted__"

// sealVersion prefixes every sealed payload so the format can change
// without guessing.
const sealVersion = "v1:"

// ErrUnsealable is returned when a stored snapshot cannot be opened with
// any configured key, or was sealed for a different call.
var ErrUnsealable = errors.New("session snapshot cannot be decrypted")

// sealer seals call snapshots with AES-256-GCM. The call id is the
// additional data, so a snapshot copied under another call id will not
// open.
type sealer struct {
	next ports.SessionStore
	// aeads[0] seals; every entry is tried on open.
	aeads []cipher.AEAD
}

// NewEncryptionMiddleware encrypts call snapshots at rest. active seals new
// snapshots; previous keys only open snapshots written before a rotation.
// Every key must be 32 bytes. Only the call id, status and timestamps stay
// readable in the store so listing and expiry keep working.
func NewEncryptionMiddleware(active []byte, previous ...[]byte) (Middleware, error) {
	keys := append([][]byte{active}, previous...)
	aeads := make([]cipher.AEAD, 0, len(keys))
	for i, k := range keys {
		if len(k) != 32 {
			return nil, fmt.Errorf("encryption key %d: want 32 bytes, got %d", i, len(k))
		}
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, err
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		aeads = append(aeads, gcm)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &sealer{next: next, aeads: aeads}
	}, nil
}

func (m *sealer) Save(ctx context.Context, callID string, s *domain.CallSession) error {
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", callID, err)
	}
	gcm := m.aeads[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("seal call %s: %w", callID, err)
	}
	sealed := gcm.Seal(nonce, nonce, plain, []byte(callID))

	return m.next.Save(ctx, callID, &domain.CallSession{
		ID:        s.ID,
		Status:    s.Status,
		EndReason: s.EndReason,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Variables: domain.Variables{
			sealedVar: sealVersion + base64.StdEncoding.EncodeToString(sealed),
		},
	})
}

func (m *sealer) Load(ctx context.Context, callID string) (*domain.CallSession, error) {
	envelope, err := m.next.Load(ctx, callID)
	if err != nil {
		return nil, err
	}

	// A plain snapshot under an encrypting store is not trusted.
	raw, ok := envelope.Variables[sealedVar].(string)
	if !ok || !strings.HasPrefix(raw, sealVersion) {
		return nil, fmt.Errorf("call %s: %w: no sealed payload", callID, ErrUnsealable)
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, sealVersion))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w: %v", callID, ErrUnsealable, err)
	}

	plain, err := m.open(sealed, []byte(callID))
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", callID, err)
	}

	var s domain.CallSession
	if err := json.Unmarshal(plain, &s); err != nil {
		return nil, fmt.Errorf("unmarshal call %s: %w", callID, err)
	}
	return &s, nil
}

func (m *sealer) open(sealed, callID []byte) ([]byte, error) {
	for _, gcm := range m.aeads {
		n := gcm.NonceSize()
		if len(sealed) < n {
			return nil, fmt.Errorf("%w: payload too short", ErrUnsealable)
		}
		if plain, err := gcm.Open(nil, sealed[:n], sealed[n:], callID); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUnsealable
}

func (m *sealer) Delete(ctx context.Context, callID string) error {
	return m.next.Delete(ctx, callID)
}

func (m *sealer) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
