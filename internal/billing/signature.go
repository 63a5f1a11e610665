package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how old a signed payload may be.
const DefaultTolerance = 5 * time.Minute

// ErrInvalidSignature is returned when a webhook signature does not verify.
var ErrInvalidSignature = eris.New("billing: invalid webhook signature")

func computeSignature(payload []byte, secret string, ts int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10))) //nolint:errcheck
	mac.Write([]byte("."))                       //nolint:errcheck
	mac.Write(payload)                           //nolint:errcheck
	return mac.Sum(nil)
}

// Sign produces a signature header value for payload, in the same
// "t=<unix>,v1=<hex>" form the payment provider sends.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(payload, secret, ts)))
}

// VerifySignature checks header against an HMAC-SHA256 of the timestamp and
// payload. Any v1 entry may match. A positive tolerance also rejects
// timestamps further than tolerance from now.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return eris.Wrap(ErrInvalidSignature, "billing: webhook secret not configured")
	}

	var (
		ts     int64
		haveTS bool
		sigs   [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return eris.Wrap(ErrInvalidSignature, "billing: malformed timestamp")
			}
			ts, haveTS = n, true
		case "v1":
			b, err := hex.DecodeString(v)
			if err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if !haveTS || len(sigs) == 0 {
		return eris.Wrap(ErrInvalidSignature, "billing: signature header missing t or v1")
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return eris.Wrapf(ErrInvalidSignature, "billing: timestamp outside tolerance (%s)", age.Round(time.Second))
		}
	}

	expected := computeSignature(payload, secret, ts)
	for _, s := range sigs {
		if hmac.Equal(s, expected) {
			return nil
		}
	}
	return eris.Wrap(ErrInvalidSignature, "billing: no matching signature")
}
