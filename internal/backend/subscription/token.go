package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/errs"
)

// Family names one of the three OAuth-refresh-token-bearing subscription
// families.
type Family string

const (
	FamilyClaudePro      Family = "claude-pro"
	FamilyChatGPTPlus    Family = "chatgpt-plus"
	FamilyGeminiAdvanced Family = "gemini-advanced"
)

// tokenFile is the on-disk JSON schema for one family's cached OAuth
// tokens: {access, refresh, expires_at}.
type tokenFile struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds
}

// tokenStore serializes refresh-and-persist for one family so two
// concurrent refreshes cannot race and write conflicting tokens to disk
// (spec.md §5).
type tokenStore struct {
	mu            sync.Mutex
	path          string
	tokenEndpoint string
	clientID      string
	client        *http.Client
}

const expiryWindow = 60 * time.Second

// AccessToken returns a currently-valid access token for this family,
// refreshing and atomically persisting the on-disk cache first if the
// cached token is within the 60-second expiry window.
func (s *tokenStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := readTokenFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read token file %s: %w", s.path, err)
	}

	if time.Until(time.Unix(tok.ExpiresAt, 0)) > expiryWindow {
		return tok.Access, nil
	}

	refreshed, err := s.refresh(ctx, tok.Refresh)
	if err != nil {
		return "", &errs.AuthError{Cause: fmt.Errorf("refresh token for %s: %w", s.path, err)}
	}
	if err := writeTokenFileAtomic(s.path, refreshed); err != nil {
		return "", fmt.Errorf("persist refreshed token %s: %w", s.path, err)
	}
	return refreshed.Access, nil
}

func (s *tokenStore) refresh(ctx context.Context, refreshToken string) (*tokenFile, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", s.clientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned http %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}

	newRefresh := body.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return &tokenFile{
		Access:    body.AccessToken,
		Refresh:   newRefresh,
		ExpiresAt: time.Now().Add(time.Duration(body.ExpiresIn) * time.Second).Unix(),
	}, nil
}

func readTokenFile(path string) (*tokenFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok tokenFile
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return &tok, nil
}

// writeTokenFileAtomic writes to a sibling temp file then renames over the
// target, so a crash mid-write never leaves a half-written token file —
// the same "load, mutate, atomically swap" shape the teacher's
// config.Loader uses for reloads.
func writeTokenFileAtomic(path string, tok *tokenFile) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}
