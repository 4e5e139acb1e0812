package distributord

import (
	"container/list"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"merkledrop/crypto"
)

const (
	// HeaderSigner names the address the caller claims to sign as.
	HeaderSigner = "X-Signer"
	// HeaderTimestamp is the unix timestamp (seconds) covered by the signature.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce makes otherwise identical requests distinct.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex encoded 65 byte secp256k1 signature.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature bounds the body hashed into the canonical message.
	MaxBodyForSignature int = 1 << 20

	signaturePreamble    = "merkledrop/v1"
	defaultTimestampSkew = 5 * time.Minute
	defaultNonceCapacity = 4096
)

var (
	errMissingHeader = errors.New("auth: missing signature header")
	errStaleRequest  = errors.New("auth: timestamp outside allowed skew")
	errReplay        = errors.New("auth: nonce already used")
	errBadSignature  = errors.New("auth: invalid signature")
)

type callerKey struct{}

// Caller returns the address recovered from the request signature.
func Caller(ctx context.Context) ([20]byte, bool) {
	addr, ok := ctx.Value(callerKey{}).([20]byte)
	return addr, ok
}

func withCaller(ctx context.Context, addr [20]byte) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// Authenticator recovers the caller of a signed request. There are no API
// keys: the signer's address is the identity the engine authorizes against.
type Authenticator struct {
	skew     time.Duration
	capacity int
	nowFn    func() time.Time

	mu     sync.Mutex
	swept  time.Time
	nonces map[[20]byte]*nonceStore
}

// NewAuthenticator builds an Authenticator accepting timestamps within skew
// of nowFn.
func NewAuthenticator(skew time.Duration, nowFn func() time.Time) *Authenticator {
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Authenticator{
		skew:     skew,
		capacity: defaultNonceCapacity,
		nowFn:    nowFn,
		nonces:   make(map[[20]byte]*nonceStore),
	}
}

// Authenticate validates the signature headers over body and returns the
// signer. A nonce is consumed only once the signature checks out.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) ([20]byte, error) {
	if len(body) > MaxBodyForSignature {
		return [20]byte{}, fmt.Errorf("request body exceeds %d bytes", MaxBodyForSignature)
	}
	claimed := strings.TrimSpace(r.Header.Get(HeaderSigner))
	timestamp := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	sigHex := strings.TrimSpace(r.Header.Get(HeaderSignature))
	switch {
	case claimed == "":
		return [20]byte{}, fmt.Errorf("%w: %s", errMissingHeader, HeaderSigner)
	case timestamp == "":
		return [20]byte{}, fmt.Errorf("%w: %s", errMissingHeader, HeaderTimestamp)
	case nonce == "":
		return [20]byte{}, fmt.Errorf("%w: %s", errMissingHeader, HeaderNonce)
	case sigHex == "":
		return [20]byte{}, fmt.Errorf("%w: %s", errMissingHeader, HeaderSignature)
	}
	expected, err := crypto.ParseAddress(claimed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid signer: %w", err)
	}
	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	drift := now.Sub(time.Unix(secs, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > a.skew {
		return [20]byte{}, fmt.Errorf("%w of %s", errStaleRequest, a.skew)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", errBadSignature, err)
	}
	message := CanonicalMessage(timestamp, nonce, r.Method, CanonicalRequestPath(r), body)
	signer, err := crypto.RecoverSigner(message, sig)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", errBadSignature, err)
	}
	addr := signer.Raw()
	// Recovery always yields some address, so a tampered body only shows up
	// as a mismatch with the declared signer.
	if addr != expected.Raw() {
		return [20]byte{}, fmt.Errorf("%w: signer mismatch", errBadSignature)
	}
	if a.seen(addr, timestamp+"|"+nonce, now) {
		return [20]byte{}, errReplay
	}
	return addr, nil
}

// seen records key for signer. The store lookup and the record happen under
// a.mu so a concurrent sweep cannot drop a store between the two.
func (a *Authenticator) seen(signer [20]byte, key string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evictIdle(now)
	store, ok := a.nonces[signer]
	if !ok {
		// Entries older than twice the skew can no longer pass the
		// timestamp check, so they need not be remembered.
		store = newNonceStore(2*a.skew, a.capacity)
		a.nonces[signer] = store
	}
	return store.Seen(key, now)
}

// evictIdle drops the stores of signers with no nonce young enough to be
// replayed. It must be called with a.mu held.
func (a *Authenticator) evictIdle(now time.Time) {
	if now.Sub(a.swept) < a.skew {
		return
	}
	a.swept = now
	for signer, store := range a.nonces {
		if store.idle(now) {
			delete(a.nonces, signer)
		}
	}
}

func (a *Authenticator) signers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nonces)
}

// CanonicalRequestPath normalises URL paths and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		parts := strings.Split(r.URL.RawQuery, "&")
		sort.Strings(parts)
		path += "?" + strings.Join(parts, "&")
	}
	return path
}

// CanonicalMessage is the byte string a caller signs for a request.
func CanonicalMessage(timestamp, nonce, method, path string, body []byte) []byte {
	return []byte(strings.Join([]string{
		signaturePreamble, timestamp, nonce, strings.ToUpper(method), path, string(body),
	}, "\n"))
}

// SignRequest attaches signature headers for key to req. body must be the
// exact bytes sent as the request body.
func SignRequest(req *http.Request, key *crypto.PrivateKey, body []byte, now time.Time, nonce string) error {
	timestamp := strconv.FormatInt(now.Unix(), 10)
	message := CanonicalMessage(timestamp, nonce, req.Method, CanonicalRequestPath(req), body)
	sig, err := crypto.SignMessage(key, message)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderSigner, key.PubKey().Address().String())
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, hex.EncodeToString(sig))
	return nil
}

type nonceStore struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	ts  time.Time
}

func newNonceStore(ttl time.Duration, capacity int) *nonceStore {
	return &nonceStore{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen reports whether key was observed within the TTL and records it if not.
func (n *nonceStore) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	cutoff := now.Add(-n.ttl)
	for front := n.order.Front(); front != nil; front = n.order.Front() {
		entry := front.Value.(nonceEntry)
		if entry.ts.After(cutoff) {
			break
		}
		n.order.Remove(front)
		delete(n.entries, entry.key)
	}
	if _, ok := n.entries[key]; ok {
		return true
	}
	for n.capacity > 0 && n.order.Len() >= n.capacity {
		front := n.order.Front()
		n.order.Remove(front)
		delete(n.entries, front.Value.(nonceEntry).key)
	}
	n.entries[key] = n.order.PushBack(nonceEntry{key: key, ts: now})
	return false
}

// idle reports whether every recorded nonce is older than the TTL.
func (n *nonceStore) idle(now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	back := n.order.Back()
	return back == nil || !back.Value.(nonceEntry).ts.After(now.Add(-n.ttl))
}
