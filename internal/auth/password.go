package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrInvalidHash is returned when a stored hash is not a well-formed argon2id string.
var ErrInvalidHash = errors.New("stored hash is not in the argon2id format")

// ErrIncompatibleVersion is returned when a stored hash was produced by another argon2 version.
var ErrIncompatibleVersion = errors.New("incompatible argon2 version")

// argonParams defines the parameters for the Argon2id hashing algorithm.
// - memory:      The amount of memory used by the algorithm (in KiB).
// - iterations:  The number of passes over the memory.
// - parallelism: The number of threads used by the algorithm.
// - saltLength:  The length of the random salt.
// - keyLength:   The length of the generated hash.
type argonParams struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// DefaultParams is used for every new hash. Existing hashes carry their own
// parameters, so raising these later does not invalidate stored passwords.
var DefaultParams = &argonParams{
	memory:      64 * 1024, // 64 MB
	iterations:  3,
	parallelism: 2,
	saltLength:  16,
	keyLength:   32,
}

// HashPassword takes a plain-text password and returns a salted argon2id hash
// encoded as $argon2id$v=<ver>$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>.
func HashPassword(password string) (string, error) {
	return hashWithParams(password, DefaultParams)
}

func hashWithParams(password string, p *argonParams) (string, error) {
	salt := make([]byte, p.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)

	b64Salt := base64.RawStdEncoding.EncodeToString(salt)
	b64Hash := base64.RawStdEncoding.EncodeToString(hash)

	format := "$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s"
	return fmt.Sprintf(format, argon2.Version, p.memory, p.iterations, p.parallelism, b64Salt, b64Hash), nil
}

// CheckPasswordHash compares a plain-text password with a stored hash to see if they match.
// A malformed stored hash never matches.
func CheckPasswordHash(password, storedHash string) bool {
	p, salt, hash, err := decodeHash(storedHash)
	if err != nil {
		return false
	}

	otherHash := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, p.keyLength)

	// Constant-time so the comparison does not leak how many leading bytes matched.
	return subtle.ConstantTimeCompare(hash, otherHash) == 1
}

// decodeHash is a helper function to parse the formatted hash string.
func decodeHash(fullHash string) (p *argonParams, salt, hash []byte, err error) {
	vals := strings.Split(fullHash, "$")
	if len(vals) != 6 || vals[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err = fmt.Sscanf(vals[2], "v=%d", &version); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, nil, nil, ErrIncompatibleVersion
	}

	p = &argonParams{}
	if _, err = fmt.Sscanf(vals[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return nil, nil, nil, ErrInvalidHash
	}

	salt, err = base64.RawStdEncoding.Strict().DecodeString(vals[4])
	if err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	p.saltLength = uint32(len(salt))

	hash, err = base64.RawStdEncoding.Strict().DecodeString(vals[5])
	if err != nil {
		return nil, nil, nil, ErrInvalidHash
	}
	p.keyLength = uint32(len(hash))

	return p, salt, hash, nil
}
