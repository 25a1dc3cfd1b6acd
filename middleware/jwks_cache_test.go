package middleware

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRoundTripper is a mock type for http.RoundTripper
type MockRoundTripper struct {
	mock.Mock
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	res, _ := args.Get(0).(*http.Response) // Handle nil safely
	return res, args.Error(1)
}

func createTestJWKS(t *testing.T, key jwk.Key) jwk.Set {
	t.Helper()
	set := jwk.NewSet()
	err := set.AddKey(key)
	require.NoError(t, err)
	return set
}

func generateRSAKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv, &priv.PublicKey
}

func TestJWKSCache_GetKey(t *testing.T) {
	jwksURL := "http://test.com/.well-known/jwks.json"
	cacheTTL := 1 * time.Minute
	keyID := "test-key-id"

	_, pubKey := generateRSAKeys(t)
	jwkKey, err := jwk.FromRaw(pubKey)
	require.NoError(t, err)
	_ = jwkKey.Set(jwk.KeyIDKey, keyID)
	_ = jwkKey.Set(jwk.AlgorithmKey, "RS256")

	jwksSet := createTestJWKS(t, jwkKey)
	jwksBytes, err := json.Marshal(jwksSet)
	require.NoError(t, err)

	testCases := []struct {
		name         string
		initialCache map[string]jwk.Key
		mockSetup    func(mrt *MockRoundTripper)
		keyToGet     string
		expectFetch  bool
		expectedKey  jwk.Key
		expectedErr  bool
		checkErrText string
	}{
		{
			name: "Key Found in Cache",
			initialCache: map[string]jwk.Key{
				keyID: jwkKey,
			},
			mockSetup:   func(mrt *MockRoundTripper) {},
			keyToGet:    keyID,
			expectFetch: false,
			expectedKey: jwkKey,
			expectedErr: false,
		},
		{
			name:         "Key Not in Cache - Fetch Success",
			initialCache: map[string]jwk.Key{},
			mockSetup: func(mrt *MockRoundTripper) {
				resp := &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewReader(jwksBytes)),
					Header:     make(http.Header),
				}
				resp.Header.Set("Content-Type", "application/json")
				mrt.On("RoundTrip", mock.MatchedBy(func(req *http.Request) bool {
					return req.Method == http.MethodGet && req.URL.String() == jwksURL
				})).Return(resp, nil).Once()
			},
			keyToGet:    keyID,
			expectFetch: true,
			expectedKey: jwkKey,
			expectedErr: false,
		},
		{
			name:         "Key Not in Cache - Fetch HTTP Error",
			initialCache: map[string]jwk.Key{},
			mockSetup: func(mrt *MockRoundTripper) {
				mrt.On("RoundTrip", mock.AnythingOfType("*http.Request")).Return(nil, errors.New("network error")).Once()
			},
			keyToGet:     keyID,
			expectFetch:  true,
			expectedKey:  nil,
			expectedErr:  true,
			checkErrText: "failed to fetch JWKS",
		},
		{
			name:         "Key Not in Cache - Fetch Non-200 Status",
			initialCache: map[string]jwk.Key{},
			mockSetup: func(mrt *MockRoundTripper) {
				resp := &http.Response{
					StatusCode: http.StatusNotFound,
					Body:       io.NopCloser(bytes.NewReader([]byte("Not Found"))),
				}
				mrt.On("RoundTrip", mock.AnythingOfType("*http.Request")).Return(resp, nil).Once()
			},
			keyToGet:     keyID,
			expectFetch:  true,
			expectedKey:  nil,
			expectedErr:  true,
			checkErrText: "JWKS endpoint returned status 404",
		},
		{
			name:         "Key Not in Cache - Fetch Invalid JSON",
			initialCache: map[string]jwk.Key{},
			mockSetup: func(mrt *MockRoundTripper) {
				resp := &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewReader([]byte("invalid json"))),
					Header:     make(http.Header),
				}
				resp.Header.Set("Content-Type", "application/json")
				mrt.On("RoundTrip", mock.AnythingOfType("*http.Request")).Return(resp, nil).Once()
			},
			keyToGet:     keyID,
			expectFetch:  true,
			expectedKey:  nil,
			expectedErr:  true,
			checkErrText: "failed to decode JWKS response",
		},
		{
			name:         "Key Not Found After Successful Fetch",
			initialCache: map[string]jwk.Key{},
			mockSetup: func(mrt *MockRoundTripper) {
				otherKeyID := "other-key"
				_, otherPubKey := generateRSAKeys(t)
				otherKey, _ := jwk.FromRaw(otherPubKey)
				_ = otherKey.Set(jwk.KeyIDKey, otherKeyID)
				otherSet := createTestJWKS(t, otherKey)
				otherBytes, _ := json.Marshal(otherSet)

				resp := &http.Response{
					StatusCode: http.StatusOK,
					Body:       io.NopCloser(bytes.NewReader(otherBytes)),
					Header:     make(http.Header),
				}
				resp.Header.Set("Content-Type", "application/json")
				mrt.On("RoundTrip", mock.MatchedBy(func(req *http.Request) bool {
					return req.URL.String() == jwksURL
				})).Return(resp, nil).Once()
			},
			keyToGet:     keyID,
			expectFetch:  true,
			expectedKey:  nil,
			expectedErr:  true,
			checkErrText: "key with kid 'test-key-id' not found in JWKS after refresh",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRT := new(MockRoundTripper)
			tc.mockSetup(mockRT)

			client := &http.Client{
				Transport: mockRT,
				Timeout:   5 * time.Second,
			}

			cache := &JWKSCache{
				keys:       make(map[string]jwk.Key),
				expiresAt:  time.Now().Add(-1 * time.Hour),
				jwksURL:    jwksURL,
				ttl:        cacheTTL,
				httpClient: client,
			}

			if len(tc.initialCache) > 0 {
				cache.mutex.Lock()
				for k, v := range tc.initialCache {
					cache.keys[k] = v
				}
				cache.expiresAt = time.Now().Add(cacheTTL)
				cache.mutex.Unlock()
			}

			fetchedKey, err := cache.GetKey(tc.keyToGet)

			if tc.expectedErr {
				assert.Error(t, err)
				if tc.checkErrText != "" {
					assert.Contains(t, err.Error(), tc.checkErrText)
				}
				assert.Nil(t, fetchedKey)
			} else {
				assert.NoError(t, err)
				if tc.expectedKey != nil {
					assert.NotNil(t, fetchedKey)
					assert.Equal(t, tc.expectedKey.KeyID(), fetchedKey.KeyID())
				} else {
					assert.Nil(t, fetchedKey)
				}
			}

			mockRT.AssertExpectations(t)

			if !tc.expectedErr && tc.expectFetch && tc.expectedKey != nil {
				cache.mutex.RLock()
				val, found := cache.keys[tc.keyToGet]
				cache.mutex.RUnlock()
				assert.True(t, found, "Key should be in cache after successful fetch")
				assert.NotNil(t, val)
				if val != nil {
					assert.Equal(t, tc.expectedKey.KeyID(), val.KeyID())
				}
			}
		})
	}
}

// Test GetJWKSCache singleton separately
func TestGetJWKSCache_Singleton(t *testing.T) {
	url1 := "http://test1.com"
	ttl1 := 5 * time.Minute

	instance1 := GetJWKSCache(url1, ttl1)
	require.NotNil(t, instance1)
	assert.Equal(t, url1, instance1.jwksURL)
	assert.Equal(t, ttl1, instance1.ttl)

	instance2 := GetJWKSCache(url1, ttl1)
	assert.Same(t, instance1, instance2)

	url3 := "http://test3.com"
	ttl3 := 10 * time.Minute
	instance3 := GetJWKSCache(url3, ttl3)
	assert.Same(t, instance1, instance3)
	instance3.mutex.RLock()
	assert.Equal(t, url3, instance3.jwksURL)
	instance3.mutex.RUnlock()
}
