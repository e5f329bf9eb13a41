package checkout

import (
	"crypto/rand"
	"math/big"
	"time"
)

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var alphabetSize = big.NewInt(int64(len(orderNumberAlphabet)))

// NewOrderNumber renders ORD + yymmdd + four random characters.
func NewOrderNumber(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return "ORD" + now.Format("060102") + string(suffix), nil
}
