package playback

import (
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signed stream URLs follow the nginx secure_link_md5 layout so the edge
// proxy re-derives the signature from its own copy of the secret without
// consulting this service:
//
//	signature = base64url(MD5("<expiry><path> <secret>"))
//	url       = <path>?e=<expiry>&st=<signature>
//
// Byte-for-byte reproducibility is the contract; do not change the message
// layout without redeploying the edge.

var (
	ErrLinkExpired   = errors.New("stream link expired")
	ErrBadSignature  = errors.New("stream link signature mismatch")
	ErrMalformedLink = errors.New("malformed stream link")
)

// SignPath produces the signed URL for a manifest path expiring at expiry.
func SignPath(path string, expiry int64, secret string) string {
	return fmt.Sprintf("%s?e=%d&st=%s", path, expiry, signature(path, expiry, secret))
}

func signature(path string, expiry int64, secret string) string {
	msg := strconv.FormatInt(expiry, 10) + path + " " + secret
	sum := md5.Sum([]byte(msg))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifySignedURL re-derives the signature the way the edge proxy does and
// checks expiry against now. It accepts the full signed URL.
func VerifySignedURL(signedURL string, secret string, now time.Time) error {
	u, err := url.Parse(signedURL)
	if err != nil {
		return ErrMalformedLink
	}
	q := u.Query()
	expiryRaw := q.Get("e")
	sig := q.Get("st")
	if expiryRaw == "" || sig == "" {
		return ErrMalformedLink
	}
	expiry, err := strconv.ParseInt(expiryRaw, 10, 64)
	if err != nil {
		return ErrMalformedLink
	}
	if sig != signature(u.Path, expiry, secret) {
		return ErrBadSignature
	}
	if now.Unix() > expiry {
		return ErrLinkExpired
	}
	return nil
}
