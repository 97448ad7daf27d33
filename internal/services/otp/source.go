package otp

import (
	"crypto/rand"
	"encoding/base32"
	"strconv"
	"sync/atomic"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"

	"github.com/thefall/sessionserver/internal/dependencies/random"
)

// Code bounds: six digits with no leading zero
const (
	MinCode = 100000
	MaxCode = 999999
)

// CodeSource yields candidate one-time codes; the cache rejects unusable candidates
type CodeSource interface {
	Next() (int, error)
}

// HOTPSource derives codes from a per-process secret and an incrementing counter
type HOTPSource struct {
	secret  string
	counter atomic.Uint64
}

// NewHOTPSource creates a HOTPSource with a fresh random secret
func NewHOTPSource() (*HOTPSource, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return &HOTPSource{
		secret: base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw),
	}, nil
}

// Next returns the code for the next counter value
func (s *HOTPSource) Next() (int, error) {
	code, err := hotp.GenerateCodeCustom(s.secret, s.counter.Add(1), hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(code)
}

// RandomSource draws codes uniformly from the six-digit range
type RandomSource struct {
	random random.Random
}

// NewRandomSource creates a RandomSource
func NewRandomSource(r random.Random) *RandomSource {
	return &RandomSource{random: r}
}

// Next returns a random six-digit code
func (s *RandomSource) Next() (int, error) {
	return random.Between(s.random, MinCode, MaxCode), nil
}
