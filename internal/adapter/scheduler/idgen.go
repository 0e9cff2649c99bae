package scheduler

import (
	"crypto/rand"

	"github.com/mr-tron/base58"
)

const (
	idBytes = 6
	// maxIDAttempts ограничивает подбор id при коллизиях.
	maxIDAttempts = 10
)

// NewID генерирует короткий id из алфавита base58 (без 0, O, I и l),
// удобный для ручного ввода в чате.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base58.Encode(b), nil
}
