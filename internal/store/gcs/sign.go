package gcs

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const signHost = "storage.googleapis.com"

// urlSigner mints V4 signed URLs from a service-account key. Only GET is
// supported; that is all the read-URL endpoint hands out.
type urlSigner struct {
	email string
	key   *rsa.PrivateKey
}

func newURLSigner(credentialsFile string) (*urlSigner, error) {
	raw, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var sa struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("credentials carry no signing material")
	}
	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return nil, fmt.Errorf("private_key is not PEM")
	}
	key, err := parseRSAKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	return &urlSigner{email: sa.ClientEmail, key: key}, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private_key is not RSA")
		}
		return rsaKey, nil
	}
	k, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private_key: %w", err)
	}
	return k, nil
}

// sign builds the V4 query-signed URL for a GET of the object.
func (s *urlSigner) sign(bucket, object string, ttl time.Duration, now time.Time) (string, error) {
	now = now.UTC()
	stamp := now.Format("20060102T150405Z")
	scope := now.Format("20060102") + "/auto/storage/goog4_request"
	path := "/" + bucket + "/" + escapeObject(object)

	q := url.Values{}
	q.Set("X-Goog-Algorithm", "GOOG4-RSA-SHA256")
	q.Set("X-Goog-Credential", s.email+"/"+scope)
	q.Set("X-Goog-Date", stamp)
	q.Set("X-Goog-Expires", strconv.Itoa(int(ttl/time.Second)))
	q.Set("X-Goog-SignedHeaders", "host")
	query := q.Encode()

	canonical := strings.Join([]string{
		"GET",
		path,
		query,
		"host:" + signHost + "\n",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")
	sum := sha256.Sum256([]byte(canonical))
	toSign := strings.Join([]string{
		"GOOG4-RSA-SHA256",
		stamp,
		scope,
		hex.EncodeToString(sum[:]),
	}, "\n")

	digest := sha256.Sum256([]byte(toSign))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign url: %w", err)
	}
	return "https://" + signHost + path + "?" + query + "&X-Goog-Signature=" + hex.EncodeToString(sig), nil
}

// escapeObject percent-encodes each path segment while keeping separators.
func escapeObject(object string) string {
	parts := strings.Split(object, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
