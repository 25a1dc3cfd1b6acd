package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pollrelay/pollengine/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJWTValidator mocks the Validator interface consumed by RequireAuth
// and OptionalAuth.
type MockJWTValidator struct {
	mock.Mock
}

func (m *MockJWTValidator) Validate(tokenString string) (string, error) {
	args := m.Called(tokenString)
	return args.String(0), args.Error(1)
}

func (m *MockJWTValidator) ValidateAndGetClaims(tokenString string) (*types.JWTClaims, error) {
	args := m.Called(tokenString)
	claims, _ := args.Get(0).(*types.JWTClaims)
	return claims, args.Error(1)
}

var _ Validator = (*MockJWTValidator)(nil)

func setupRequireAuthRouter(validator Validator) (*gin.Engine, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(RequireAuth(validator))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Success", "user_id": c.GetString(string(UserIDKey))})
	})
	return r, w
}

func TestRequireAuth(t *testing.T) {
	mockValidator := new(MockJWTValidator)
	router, w := setupRequireAuthRouter(mockValidator)
	testUserID := uuid.New().String()
	validToken := "valid.token.string"

	testCases := []struct {
		name           string
		tokenHeader    string
		mockSetup      func()
		expectedStatus int
	}{
		{
			name:           "no authorization header",
			tokenHeader:    "",
			mockSetup:      func() {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid authorization header format",
			tokenHeader:    "InvalidToken",
			mockSetup:      func() {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:        "token validation fails",
			tokenHeader: fmt.Sprintf("Bearer %s", validToken),
			mockSetup: func() {
				mockValidator.On("ValidateAndGetClaims", validToken).Return((*types.JWTClaims)(nil), assert.AnError).Once()
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:        "token validation succeeds",
			tokenHeader: fmt.Sprintf("Bearer %s", validToken),
			mockSetup: func() {
				mockValidator.On("ValidateAndGetClaims", validToken).Return(&types.JWTClaims{UserID: testUserID, Email: "voter@example.com"}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			*w = *httptest.NewRecorder()
			mockValidator.ExpectedCalls = nil
			mockValidator.Calls = nil
			tc.mockSetup()

			req, _ := http.NewRequest("GET", "/protected", nil)
			if tc.tokenHeader != "" {
				req.Header.Set("Authorization", tc.tokenHeader)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			mockValidator.AssertExpectations(t)

			if tc.expectedStatus == http.StatusOK {
				var body map[string]string
				assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, testUserID, body["user_id"])
			}
		})
	}
}

func TestOptionalAuth_AnonymousWhenNoHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockValidator := new(MockJWTValidator)
	r := gin.New()
	r.Use(OptionalAuth(mockValidator))
	r.GET("/vote", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(string(UserIDKey))})
	})

	req, _ := http.NewRequest("GET", "/vote", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "", body["user_id"])
	mockValidator.AssertNotCalled(t, "ValidateAndGetClaims", mock.Anything)
}

func TestOptionalAuth_InvalidTokenStillAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockValidator := new(MockJWTValidator)
	mockValidator.On("ValidateAndGetClaims", "bad-token").Return((*types.JWTClaims)(nil), assert.AnError).Once()

	r := gin.New()
	r.Use(OptionalAuth(mockValidator))
	r.GET("/vote", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(string(UserIDKey))})
	})

	req, _ := http.NewRequest("GET", "/vote", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockValidator.AssertExpectations(t)
}
