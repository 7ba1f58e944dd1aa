package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"git.handmade.network/hmn/forum/src/db"
	"git.handmade.network/hmn/forum/src/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

type HashAlgorithm string

const (
	// Accounts imported from the old Django forum still carry these.
	Django_PBKDF2SHA256 HashAlgorithm = "pbkdf2_sha256"
	Argon2id            HashAlgorithm = "argon2id"
)

const saltLength = 16
const keyLength = 64

type HashedPassword struct {
	Algorithm  HashAlgorithm
	AlgoConfig string // hash parameters, e.g. work factor

	// Stored exactly as they appear in the database (usually base64).
	Salt string
	Hash string
}

func ParsePasswordString(s string) (HashedPassword, error) {
	pieces := strings.SplitN(s, "$", 4)
	if len(pieces) < 4 {
		return HashedPassword{}, oops.New(nil, "unrecognized password string format")
	}

	return HashedPassword{
		Algorithm:  HashAlgorithm(pieces[0]),
		AlgoConfig: pieces[1],
		Salt:       pieces[2],
		Hash:       pieces[3],
	}, nil
}

func (p HashedPassword) String() string {
	return fmt.Sprintf("%s$%s$%s$%s", p.Algorithm, p.AlgoConfig, p.Salt, p.Hash)
}

// Outdated hashes get upgraded on the next successful login.
func (p HashedPassword) IsOutdated() bool {
	return p.Algorithm != Argon2id
}

type Argon2idConfig struct {
	Time      uint32
	Memory    uint32
	Threads   uint8
	KeyLength uint32
}

func ParseArgon2idConfig(cfg string) (Argon2idConfig, error) {
	var result Argon2idConfig
	for _, part := range strings.Split(cfg, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Argon2idConfig{}, oops.New(nil, "malformed Argon2id config part '%s'", part)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return Argon2idConfig{}, oops.New(err, "failed to parse '%s' in Argon2id config", key)
		}
		switch key {
		case "t":
			result.Time = uint32(n)
		case "m":
			result.Memory = uint32(n)
		case "p":
			if n > 255 {
				return Argon2idConfig{}, oops.New(nil, "too many threads in Argon2id config")
			}
			result.Threads = uint8(n)
		case "l":
			result.KeyLength = uint32(n)
		default:
			return Argon2idConfig{}, oops.New(nil, "unknown Argon2id config key '%s'", key)
		}
	}
	if result.Time == 0 || result.Memory == 0 || result.Threads == 0 || result.KeyLength == 0 {
		return Argon2idConfig{}, oops.New(nil, "incomplete Argon2id config '%s'", cfg)
	}
	return result, nil
}

func (c Argon2idConfig) String() string {
	return fmt.Sprintf("t=%v,m=%v,p=%v,l=%v", c.Time, c.Memory, c.Threads, c.KeyLength)
}

func CheckPassword(password string, hashedPassword HashedPassword) (bool, error) {
	var computed []byte
	switch hashedPassword.Algorithm {
	case Argon2id:
		cfg, err := ParseArgon2idConfig(hashedPassword.AlgoConfig)
		if err != nil {
			return false, err
		}

		salt, err := base64.StdEncoding.DecodeString(hashedPassword.Salt)
		if err != nil {
			return false, oops.New(err, "failed to decode salt")
		}

		computed = argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)
	case Django_PBKDF2SHA256:
		decoded, err := base64.StdEncoding.DecodeString(hashedPassword.Hash)
		if err != nil {
			return false, oops.New(err, "failed to get key length of hashed password")
		}

		iterations, err := strconv.Atoi(hashedPassword.AlgoConfig)
		if err != nil {
			return false, oops.New(err, "failed to get PBKDF2 iterations")
		}

		// Django uses the salt as-is, not base64-decoded.
		computed = pbkdf2.Key([]byte(password), []byte(hashedPassword.Salt), iterations, len(decoded), sha256.New)
	default:
		return false, oops.New(nil, "unrecognized password hash algorithm: %s", hashedPassword.Algorithm)
	}

	encoded := base64.StdEncoding.EncodeToString(computed)
	return subtle.ConstantTimeCompare([]byte(encoded), []byte(hashedPassword.Hash)) == 1, nil
}

func HashPassword(password string) HashedPassword {
	// OWASP recommendations as of March 2021.
	// https://cheatsheetseries.owasp.org/cheatsheets/Password_Storage_Cheat_Sheet.html
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		panic(oops.New(err, "failed to generate salt"))
	}

	cfg := Argon2idConfig{
		Time:      1,
		Memory:    40 * 1024, // KiB
		Threads:   1,
		KeyLength: keyLength,
	}

	key := argon2.IDKey([]byte(password), salt, cfg.Time, cfg.Memory, cfg.Threads, cfg.KeyLength)

	return HashedPassword{
		Algorithm:  Argon2id,
		AlgoConfig: cfg.String(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Hash:       base64.StdEncoding.EncodeToString(key),
	}
}

var ErrUserDoesNotExist = errors.New("user does not exist")

func UpdatePassword(ctx context.Context, conn db.ConnOrTx, username string, hp HashedPassword) error {
	tag, err := conn.Exec(ctx, "UPDATE forum_user SET password = $1 WHERE LOWER(username) = LOWER($2)", hp.String(), username)
	if err != nil {
		return oops.New(err, "failed to update password")
	} else if tag.RowsAffected() < 1 {
		return ErrUserDoesNotExist
	}

	return nil
}
