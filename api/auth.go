package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	"github.com/helix-tools/etl-go/types"
)

// Authenticate posts the credentials as form fields to loginURL and returns
// the access_token of the response verbatim.
//
// A response without an access_token yields an empty token and no error; the
// empty token is then sent as-is on later requests.
func (c *Client) Authenticate(ctx context.Context, loginURL string, creds types.Credentials) (types.Token, error) {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		}).
		Post(loginURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return "", &AuthenticationError{URL: loginURL, Err: err}
	}

	if !res.IsSuccess() {
		apiErr := newAPIError(res)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "login rejected")
		return "", &AuthenticationError{URL: loginURL, Err: apiErr}
	}

	var body struct {
		AccessToken json.RawMessage `json:"access_token"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}

	token := types.Token(types.FormatValue(body.AccessToken))
	if token == "" {
		slog.WarnContext(ctx, "login response carried no access_token, continuing with an empty token", "url", loginURL)
	}

	return token, nil
}
