package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-tools/etl-go/api/apitest"
	"github.com/helix-tools/etl-go/types"
)

func testCredentials() types.Credentials {
	return types.Credentials{Username: apitest.TestUsername, Password: apitest.TestPassword}
}

func TestAuthenticateReturnsTokenVerbatim(t *testing.T) {
	server := apitest.NewServer(apitest.NewFixture())
	defer server.Close()

	client := NewClient(ClientOptions{})
	token, err := client.Authenticate(context.Background(), server.URLFor(apitest.LoginPath), testCredentials())
	require.NoError(t, err)
	require.Equal(t, types.Token(apitest.TestToken), token)

	reqs := server.RequestsTo(apitest.LoginPath)
	require.Len(t, reqs, 1)
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, apitest.TestUsername, reqs[0].Form.Get("username"))
	require.Equal(t, apitest.TestPassword, reqs[0].Form.Get("password"))
}

func TestAuthenticateMissingTokenIsEmpty(t *testing.T) {
	fixture := apitest.NewFixture()
	fixture.OmitToken = true
	server := apitest.NewServer(fixture)
	defer server.Close()

	client := NewClient(ClientOptions{})
	token, err := client.Authenticate(context.Background(), server.URLFor(apitest.LoginPath), testCredentials())
	require.NoError(t, err)
	require.Equal(t, types.Token(""), token)
}

func TestAuthenticateRejected(t *testing.T) {
	server := apitest.NewServer(apitest.NewFixture())
	defer server.Close()

	client := NewClient(ClientOptions{})
	_, err := client.Authenticate(context.Background(), server.URLFor(apitest.LoginPath), types.Credentials{
		Username: apitest.TestUsername,
		Password: "wrong",
	})
	require.Error(t, err)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr), "expected *AuthenticationError, got %T", err)
	require.True(t, IsUnauthorizedError(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "Incorrect username or password", apiErr.Message)
}

func TestAuthenticateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{})
	_, err := client.Authenticate(context.Background(), server.URL, testCredentials())

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	require.Equal(t, "boom", apiErr.Body)
	require.Contains(t, err.Error(), "API error 500: boom")
}

func TestAuthenticateUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(ClientOptions{})
	_, err := client.Authenticate(context.Background(), url, testCredentials())

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, url, authErr.URL)
}

func TestAuthenticateMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(ClientOptions{})
	_, err := client.Authenticate(context.Background(), server.URL, testCredentials())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode login response")

	var authErr *AuthenticationError
	require.False(t, errors.As(err, &authErr), "a malformed body is not an authentication error")
}
