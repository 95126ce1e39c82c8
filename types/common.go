// Package types defines common types used across the ETL job.
package types

import "fmt"

// Credentials holds the username/password pair exchanged for a bearer token.
type Credentials struct {
	Username string
	Password string
}

// Token is an opaque bearer credential. It is never refreshed or validated;
// a run assumes it stays valid for its whole duration.
type Token string

// String masks the token so it does not leak into logs.
func (t Token) String() string {
	if t == "" {
		return ""
	}
	return "****"
}

// Pagination is the cursor block of a collection page.
type Pagination struct {
	NextToken *string `json:"next_token"`
}

// Page is one response of a paginated collection endpoint.
type Page struct {
	Data       []Record   `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Next returns the cursor for the following page, or "" when the
// collection is exhausted.
func (p Page) Next() string {
	if p.Pagination.NextToken == nil {
		return ""
	}
	return *p.Pagination.NextToken
}

// UploadTarget addresses a single object in a bucket.
type UploadTarget struct {
	Bucket string
	Key    string
}

func (t UploadTarget) String() string {
	return fmt.Sprintf("s3://%s/%s", t.Bucket, t.Key)
}
