package pricing

import (
	"context"
	"crypto/rand"

	"github.com/luxtransfer/booking/pkg/common"
)

const (
	referenceLength  = 8
	referenceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceRetries = 5
)

// generateReference produces a unique 8-character uppercase alphanumeric
// booking reference, retrying on the (rare) collision with an existing quote.
func (e *Engine) generateReference(ctx context.Context) (string, error) {
	for attempt := 0; attempt < referenceRetries; attempt++ {
		ref, err := randomReference()
		if err != nil {
			return "", common.NewInternalError("failed to generate booking reference", err)
		}

		exists, err := e.refs.ReferenceExists(ctx, ref)
		if err != nil {
			return "", err
		}
		if !exists {
			return ref, nil
		}
	}
	return "", common.NewInternalError("exhausted booking reference attempts", nil)
}

func randomReference() (string, error) {
	buf := make([]byte, referenceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = referenceCharset[int(b)%len(referenceCharset)]
	}
	return string(buf), nil
}
