// Package captcha implements the registration state machine described by
// spec.md §4.10 — C10 in the component design. A captcha session is a
// short-lived state machine {Fresh, Verified, Completed, Expired} keyed by
// an opaque token, with a 300-second TTL measured from the last
// created_at refresh. The map+mutex+TTL shape follows the same
// one-component-one-mutex discipline as presence/convindex/uploads; there
// is no direct teacher analog (the teacher has no registration flow).
package captcha

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// State is a registration state of a stored session. Only Fresh and
// Verified are ever stored: Complete and the TTL sweep delete the session
// instead, so Completed and Expired show up as ErrNotFound.
type State int

const (
	StateFresh State = iota
	StateVerified
	StateCompleted
)

// TTL is the session lifetime from the last created_at refresh
// (spec.md §3: "TTL = 300 s from last refresh").
const TTL = 300 * time.Second

const captchaAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // excludes easily-confused glyphs

// Session is the CaptchaSession value spec.md §3 defines.
type Session struct {
	Token             string
	UsernameCandidate string
	CaptchaText       string
	CreatedAt         time.Time
	State             State
}

func (s Session) expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > TTL
}

// ErrNotFound is returned for an unknown or expired session token.
var ErrNotFound = fmt.Errorf("unknown or expired captcha session")

// ErrWrongState is returned when an operation requires a different state
// than the session is currently in.
var ErrWrongState = fmt.Errorf("captcha session in wrong state")

// Machine holds every in-flight captcha session, guarded by one mutex.
type Machine struct {
	mu       sync.Mutex
	sessions map[string]*Session
	renderer Renderer
}

// NewMachine returns an empty machine using renderer to produce captcha
// images.
func NewMachine(renderer Renderer) *Machine {
	return &Machine{sessions: make(map[string]*Session), renderer: renderer}
}

// sweepLocked evicts every session older than TTL. Called inline at the
// start of every operation (spec.md §4.10: "a background sweep, or inline
// sweep at each request, evicts sessions") and also by a background timer
// started by the caller, per SPEC_FULL.md §9's dual lazy+timer resolution.
func (m *Machine) sweepLocked(now time.Time) {
	for token, s := range m.sessions {
		if s.expired(now) {
			delete(m.sessions, token)
		}
	}
}

// Sweep evicts expired sessions; exported for a background ticker.
func (m *Machine) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(time.Now())
}

// Register1Result is the payload register_1 returns to the client.
type Register1Result struct {
	SessionID     string
	Username      string
	CaptchaImage  []byte
}

// Register1 allocates a new session: a fresh token, an 8–10 digit
// candidate username unique per existsFn, and a rendered 6-character
// captcha image. usernameCandidate is generated by repeatedly drawing a
// random digit string and checking existsFn until an unused one is found.
func (m *Machine) Register1(existsFn func(string) (bool, error)) (Register1Result, error) {
	username, err := generateUniqueUsername(existsFn)
	if err != nil {
		return Register1Result{}, fmt.Errorf("generate candidate username: %w", err)
	}

	text, err := randomCaptchaText(6)
	if err != nil {
		return Register1Result{}, fmt.Errorf("generate captcha text: %w", err)
	}
	img, err := m.renderer.Render(text)
	if err != nil {
		return Register1Result{}, fmt.Errorf("render captcha: %w", err)
	}

	token := uuid.NewString()
	now := time.Now()

	m.mu.Lock()
	m.sweepLocked(now)
	m.sessions[token] = &Session{
		Token:             token,
		UsernameCandidate: username,
		CaptchaText:       text,
		CreatedAt:         now,
		State:             StateFresh,
	}
	m.mu.Unlock()

	return Register1Result{SessionID: token, Username: username, CaptchaImage: img}, nil
}

// Register2Result is returned by Register2 on a captcha mismatch, since
// the caller must return a fresh image alongside the failure.
type Register2Result struct {
	Success      bool
	CaptchaImage []byte
}

// Register2 compares captchaInput against the session's current captcha
// text, case-insensitively. A match transitions to Verified. A mismatch
// regenerates the captcha and resets created_at, staying Fresh
// (spec.md §4.10).
func (m *Machine) Register2(token, captchaInput string) (Register2Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.sweepLocked(now)

	s, ok := m.sessions[token]
	if !ok {
		return Register2Result{}, ErrNotFound
	}
	if s.State != StateFresh {
		return Register2Result{}, ErrWrongState
	}

	if strings.EqualFold(s.CaptchaText, captchaInput) {
		s.State = StateVerified
		return Register2Result{Success: true}, nil
	}

	text, err := randomCaptchaText(6)
	if err != nil {
		return Register2Result{}, fmt.Errorf("regenerate captcha text: %w", err)
	}
	img, err := m.renderer.Render(text)
	if err != nil {
		return Register2Result{}, fmt.Errorf("render captcha: %w", err)
	}
	s.CaptchaText = text
	s.CreatedAt = now
	return Register2Result{Success: false, CaptchaImage: img}, nil
}

// RequireVerified checks that token is in the Verified state and, if so,
// returns its candidate username. The caller (the register_3 handler) is
// responsible for password-policy validation, avatar persistence, and the
// users-row insert; on success the caller must call Complete.
func (m *Machine) RequireVerified(token string) (usernameCandidate string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.sweepLocked(now)

	s, ok := m.sessions[token]
	if !ok {
		return "", ErrNotFound
	}
	if s.State != StateVerified {
		return "", ErrWrongState
	}
	return s.UsernameCandidate, nil
}

// Complete destroys token's session after a successful register_3
// (spec.md §4.10: "Insert users row. Destroy session. State = Completed.").
func (m *Machine) Complete(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

// Register4 regenerates the captcha image and resets created_at, staying
// Fresh, regardless of the session's prior state.
func (m *Machine) Register4(token string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.sweepLocked(now)

	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}

	text, err := randomCaptchaText(6)
	if err != nil {
		return nil, fmt.Errorf("regenerate captcha text: %w", err)
	}
	img, err := m.renderer.Render(text)
	if err != nil {
		return nil, fmt.Errorf("render captcha: %w", err)
	}
	s.CaptchaText = text
	s.CreatedAt = now
	s.State = StateFresh
	return img, nil
}

func randomCaptchaText(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(captchaAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(captchaAlphabet[idx.Int64()])
	}
	return b.String(), nil
}

func generateUniqueUsername(existsFn func(string) (bool, error)) (string, error) {
	for attempt := 0; attempt < 50; attempt++ {
		length := 8
		if attempt%3 == 1 {
			length = 9
		} else if attempt%3 == 2 {
			length = 10
		}
		candidate, err := randomDigits(length)
		if err != nil {
			return "", err
		}
		exists, err := existsFn(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique candidate username")
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0') + byte(d.Int64()))
	}
	return b.String(), nil
}

// ValidatePasswordPolicy enforces spec.md §4.10's register_3 password
// policy: length ≥ 8, contains an uppercase letter, contains a digit.
func ValidatePasswordPolicy(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	var hasUpper, hasDigit bool
	for _, r := range password {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain an uppercase letter")
	}
	if !hasDigit {
		return fmt.Errorf("password must contain a digit")
	}
	return nil
}
