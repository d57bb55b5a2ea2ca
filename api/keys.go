package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/consentcrawl/idgen"
	"github.com/hazyhaar/consentcrawl/kit"
	"github.com/hazyhaar/consentcrawl/shield"
)

// Key is an API key: an id for logs and the bcrypt hash of the secret.
type Key struct {
	ID   string
	Hash []byte
}

var newSecret = idgen.NanoID(32)

// NewKey returns a fresh secret and its Key. Only the hash is kept by the
// service; the secret is shown once.
func NewKey(id string) (secret string, key Key, err error) {
	secret = newSecret()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", Key{}, fmt.Errorf("api: hash key: %w", err)
	}
	return secret, Key{ID: id, Hash: hash}, nil
}

// ParseKeys reads "id:hash,id:hash" as found in the API_KEYS variable.
func ParseKeys(spec string) ([]Key, error) {
	var keys []Key
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, hash, ok := strings.Cut(item, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("api: key %q: want id:bcrypt-hash", item)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("api: key %s: %w", id, err)
		}
		keys = append(keys, Key{ID: id, Hash: []byte(hash)})
	}
	return keys, nil
}

// String renders k in the ParseKeys form.
func (k Key) String() string { return k.ID + ":" + string(k.Hash) }

var errNoKey = errors.New("missing or invalid API key")

// RequireKey rejects requests without a valid "Authorization: Bearer"
// key with 401. Paths in open pass through. With no keys every request passes.
func RequireKey(keys []Key, open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range open {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}
			id, ok := match(keys, bearer(r))
			if !ok {
				shield.GetLogger(r.Context()).Warn("api: rejected key", "remote_addr", r.RemoteAddr)
				w.Header().Set("WWW-Authenticate", `Bearer realm="consentcrawl"`)
				shield.WriteError(w, http.StatusUnauthorized, errNoKey.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(kit.WithKeyID(r.Context(), id)))
		})
	}
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func match(keys []Key, secret string) (string, bool) {
	if secret == "" {
		return "", false
	}
	for _, k := range keys {
		if bcrypt.CompareHashAndPassword(k.Hash, []byte(secret)) == nil {
			return k.ID, true
		}
	}
	return "", false
}
