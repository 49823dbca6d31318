package model

import "fmt"

// TransportError is a network failure or non-2xx response from the API.
type TransportError struct {
	URL        string
	StatusCode int    // 0 when the request never got a response
	Body       string // first 512 bytes
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport: GET %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport: GET %s: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a response body that is not valid JSON.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CredentialError is a secret that could not be read or lacks the token.
type CredentialError struct {
	SecretID string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %q: %v", e.SecretID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// StoreReadError is a watermark lookup that failed, as opposed to one that
// found nothing.
type StoreReadError struct {
	Entity string
	Err    error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("watermark read %q: %v", e.Entity, e.Err)
}

func (e *StoreReadError) Unwrap() error { return e.Err }
