package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const saltLen = 16

// argonParams is the cost of one argon2id hash. Every stored hash carries
// its own params, so changing the configured cost never locks anyone out.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

var (
	defaultParams = argonParams{memory: 64 * 1024, time: 3, threads: 4, keyLen: 32}
	fastParams    = argonParams{memory: 16 * 1024, time: 1, threads: 2, keyLen: 32}
)

// passwordHash is a decoded $argon2id$v=..$m=..,t=..,p=..$salt$key string.
type passwordHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

var b64 = base64.RawStdEncoding

func (h passwordHash) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.memory, h.params.time, h.params.threads,
		b64.EncodeToString(h.salt), b64.EncodeToString(h.key))
}

func parsePasswordHash(encoded string) (passwordHash, error) {
	var h passwordHash
	fields := strings.Split(strings.TrimPrefix(encoded, "$"), "$")
	if len(fields) != 5 || fields[0] != "argon2id" {
		return h, ErrInvalidPassword
	}

	var version int
	if _, err := fmt.Sscanf(fields[1], "v=%d", &version); err != nil || version != argon2.Version {
		return h, ErrInvalidPassword
	}
	if _, err := fmt.Sscanf(fields[2], "m=%d,t=%d,p=%d", &h.params.memory, &h.params.time, &h.params.threads); err != nil {
		return h, ErrInvalidPassword
	}

	var err error
	if h.salt, err = b64.DecodeString(fields[3]); err != nil {
		return h, ErrInvalidPassword
	}
	if h.key, err = b64.DecodeString(fields[4]); err != nil || len(h.key) == 0 {
		return h, ErrInvalidPassword
	}
	h.params.keyLen = uint32(len(h.key))
	return h, nil
}

// UserAuth hashes and checks passwords.
type UserAuth struct {
	params argonParams
}

// NewUserAuth uses the default argon2id cost with the given number of
// passes; zero keeps the default.
func NewUserAuth(iterations uint32) *UserAuth {
	p := defaultParams
	if iterations > 0 {
		p.time = iterations
	}
	return &UserAuth{params: p}
}

// NewUserAuthFast is a cheap setting for tests.
func NewUserAuthFast() *UserAuth {
	return &UserAuth{params: fastParams}
}

func (a *UserAuth) HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := a.params
	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)
	return passwordHash{params: p, salt: salt, key: key}.String(), nil
}

// VerifyPassword returns ErrInvalidPassword for a wrong password or an
// unreadable hash.
func (a *UserAuth) VerifyPassword(encodedHash, password string) error {
	h, err := parsePasswordHash(encodedHash)
	if err != nil {
		return err
	}
	p := h.params
	got := argon2.IDKey([]byte(password), h.salt, p.time, p.memory, p.threads, p.keyLen)
	if subtle.ConstantTimeCompare(h.key, got) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

// NeedsRehash reports whether encodedHash was made with a different cost
// than the current one.
func (a *UserAuth) NeedsRehash(encodedHash string) bool {
	h, err := parsePasswordHash(encodedHash)
	return err != nil || h.params != a.params
}

// Authenticate checks username and password against repo. After a
// successful login a hash made with an outdated cost is replaced; a failed
// replacement does not fail the login.
func (a *UserAuth) Authenticate(ctx context.Context, repo UserRepo, username, password string) (*User, error) {
	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := a.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	if a.NeedsRehash(user.PasswordHash) {
		if hash, err := a.HashPassword(password); err == nil {
			upgraded := *user
			upgraded.PasswordHash = hash
			if repo.Update(ctx, &upgraded) == nil {
				user = &upgraded
			}
		}
	}
	return user, nil
}
